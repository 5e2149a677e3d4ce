package reactor

import (
	"sync"
	"time"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/logging"
)

// QuickPollMsec is the collapsed max poll window used while async I/O
// completions are outstanding, so a pending disk-helper reply is not held
// up behind a full-second DoSelect wait.
const QuickPollMsec = 10

const defaultPollMsec = 1000

// Table is the process-wide descriptor table plus the readiness pump. One
// Table exists per worker; it is not safe for concurrent use from more than
// the single reactor goroutine that owns it, matching the single-threaded
// cooperative-reactor model of §5.
type Table struct {
	mu  sync.Mutex
	fds map[int]*fde

	biggest int
	count   int

	backend Backend
	log     logging.FuncLog

	udp, dns, tcp incomingStats

	quickPoll bool
	shutdown  bool
}

// NewTable constructs a Table using the platform-default Backend.
func NewTable(log logging.FuncLog) (*Table, errs.Error) {
	b, err := newBackend()
	if err != nil {
		return nil, ErrBackendFailed.Error(err)
	}
	return &Table{fds: make(map[int]*fde), backend: b, log: log}, nil
}

// Open registers fd as open with the given incoming class (ClassNone for an
// ordinary descriptor).
func (t *Table) Open(fd int, class Class) errs.Error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.fds[fd]; exists {
		return ErrAlreadyOpen.Error(nil)
	}
	e := newFde(fd)
	e.class = class
	t.fds[fd] = e
	t.count++
	if fd > t.biggest {
		t.biggest = fd
	}
	return nil
}

// BiggestFD returns the largest currently-open descriptor number, or -1 if
// none are open.
func (t *Table) BiggestFD() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return -1
	}
	return t.biggest
}

// NumberFD returns the count of currently-open descriptors.
func (t *Table) NumberFD() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *Table) get(fd int) (*fde, errs.Error) {
	e, ok := t.fds[fd]
	if !ok || !e.open {
		return nil, ErrNotOpen.Error(nil)
	}
	return e, nil
}

// SetReadHandler arms h to fire the next time fd is readable, replacing any
// previously armed read handler.
func (t *Table) SetReadHandler(fd int, h HandlerFunc) errs.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(fd)
	if err != nil {
		return err
	}
	e.armRead(h)
	return nil
}

// SetWriteHandler arms h to fire the next time fd is writable.
func (t *Table) SetWriteHandler(fd int, h HandlerFunc) errs.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(fd)
	if err != nil {
		return err
	}
	e.armWrite(h)
	return nil
}

// SetReadPending sets the Comm read_pending hint: fd is treated as readable
// even if the OS reports otherwise, because a layer above the raw socket is
// still holding buffered data. Only meaningful on sockets.
func (t *Table) SetReadPending(fd int, pending bool) errs.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(fd)
	if err != nil {
		return err
	}
	e.readPending = pending
	return nil
}

// SetCloseHandler installs the handler invoked (in registration order, were
// there more than one — this table keeps exactly one slot per fd, matching
// the common case; callers needing several chain their own dispatcher)
// when fd is torn down.
func (t *Table) SetCloseHandler(fd int, h CloseFunc) errs.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(fd)
	if err != nil {
		return err
	}
	e.closeHandler = h
	return nil
}

// SetTimeout registers an absolute deadline after which the timeout sweep
// fires a close on fd if no activity rearms it first.
func (t *Table) SetTimeout(fd int, at time.Time) errs.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(fd)
	if err != nil {
		return err
	}
	e.setTimeout(at)
	return nil
}

// ClearTimeout cancels fd's registered timeout, if any.
func (t *Table) ClearTimeout(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.fds[fd]; ok {
		e.clearTimeout()
	}
}

// SetQuickPollRequired forces DoSelect's max wait down to QuickPollMsec
// while an async completion (e.g. a disker reply) is outstanding.
func (t *Table) SetQuickPollRequired(required bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quickPoll = required
}

// RequestShutdown raises the shutdown flag; DoSelect starts returning
// Shutdown once the descriptor set drains.
func (t *Table) RequestShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shutdown = true
}

// fd_close-equivalent teardown: fires the close handler, clears both I/O
// handlers and the timeout, unregisters from the backend, and updates
// Biggest_FD by walking down from the old maximum. Caller must hold t.mu.
func (t *Table) closeLocked(fd int) {
	e, ok := t.fds[fd]
	if !ok || !e.open {
		return
	}
	e.open = false
	ch := e.closeHandler
	e.closeHandler = nil
	e.readHandler = nil
	e.writeHandler = nil
	e.readPending = false
	e.clearTimeout()

	_ = t.backend.Unregister(fd)
	delete(t.fds, fd)
	t.count--

	if fd == t.biggest {
		newBiggest := -1
		for other, rec := range t.fds {
			if rec.open && other > newBiggest {
				newBiggest = other
			}
		}
		t.biggest = newBiggest
	}

	if ch != nil {
		ch(fd)
	}
}

// Close performs the fd_close teardown. Closing an fd that is not open is a
// programmer error: the reference behavior is an assertion failure, which
// this port reports as ErrNotOpen rather than panicking, so a caller can
// choose how to escalate it.
func (t *Table) Close(fd int) errs.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.fds[fd]; !ok {
		return ErrNotOpen.Error(nil)
	}
	t.closeLocked(fd)
	return nil
}

// sweepTimeouts closes every descriptor whose deadline has passed. It runs
// as a distinct pass from the readiness loop, matching "a separate sweep,
// not in the reactor's fast path".
func (t *Table) sweepTimeouts(now time.Time) {
	t.mu.Lock()
	var expired []int
	for fd, e := range t.fds {
		if e.open && e.timedOut(now) {
			expired = append(expired, fd)
		}
	}
	t.mu.Unlock()

	for _, fd := range expired {
		t.mu.Lock()
		t.closeLocked(fd)
		t.mu.Unlock()
	}
}

// DoSelect advances the world by one pass: refresh the clock, run the
// incoming-poll heuristic, ask the backend for readiness up to msec
// milliseconds (collapsed to QuickPollMsec when quick-poll is required),
// dispatch fired handlers, and sweep expired timeouts.
func (t *Table) DoSelect(msec int) Flag {
	t.mu.Lock()
	if t.quickPoll && msec > QuickPollMsec {
		msec = QuickPollMsec
	}
	if t.shutdown && t.count == 0 {
		t.mu.Unlock()
		return Shutdown
	}
	if t.count == 0 {
		t.mu.Unlock()
		return Idle
	}

	var wantReadFDs []int
	for fd, e := range t.fds {
		if !e.open {
			continue
		}
		if e.hasReadHandler() {
			wantReadFDs = append(wantReadFDs, fd)
		}
		if err := t.backend.Register(fd, e.hasReadHandler(), e.hasWriteHandler()); err != nil {
			t.mu.Unlock()
			return CommError
		}
	}
	udpDue := t.udp.due(t.classCountLocked(ClassUDP))
	dnsDue := t.dns.due(t.classCountLocked(ClassDNS))
	tcpDue := t.tcp.due(t.classCountLocked(ClassTCPListener))
	t.mu.Unlock()

	events, err := t.backend.Wait(msec)
	if err != nil {
		return CommError
	}

	now := time.Now()
	didWork := false

	t.mu.Lock()
	for _, ev := range events {
		e, ok := t.fds[ev.FD]
		if !ok || !e.open {
			continue
		}

		if ev.Kind&EventError != 0 {
			t.closeLocked(ev.FD)
			didWork = true
			continue
		}

		var readH, writeH HandlerFunc
		if ev.Kind&EventReadable != 0 && e.hasReadHandler() {
			readH = e.detachRead()
		}
		if ev.Kind&EventWritable != 0 && e.hasWriteHandler() {
			writeH = e.detachWrite()
		}
		t.mu.Unlock()
		if readH != nil {
			readH(ev.FD)
			didWork = true
		}
		if writeH != nil {
			writeH(ev.FD)
			didWork = true
		}
		t.mu.Lock()
	}

	// post-loop interval update for the incoming classes that were due:
	// each one's counter narrows or widens by how many of its descriptors
	// fired in this pass. No separate poll of those classes is made.
	if udpDue {
		t.udp.finishPolling(t.classReadyCountLocked(ClassUDP, events), t.classCountLocked(ClassUDP))
	}
	if dnsDue {
		t.dns.finishPolling(t.classReadyCountLocked(ClassDNS, events), t.classCountLocked(ClassDNS))
	}
	if tcpDue {
		t.tcp.finishPolling(t.classReadyCountLocked(ClassTCPListener, events), t.classCountLocked(ClassTCPListener))
	}
	t.mu.Unlock()

	t.sweepTimeouts(now)

	if didWork {
		return OK
	}
	return Timeout
}

func (t *Table) classCountLocked(c Class) int {
	n := 0
	for _, e := range t.fds {
		if e.open && e.class == c {
			n++
		}
	}
	return n
}

func (t *Table) classReadyCountLocked(c Class, events []Event) int {
	n := 0
	for _, ev := range events {
		if e, ok := t.fds[ev.FD]; ok && e.class == c {
			n++
		}
	}
	return n
}

// Close shuts the backend down. Call once the reactor goroutine has exited.
func (t *Table) CloseBackend() error {
	return t.backend.Close()
}
