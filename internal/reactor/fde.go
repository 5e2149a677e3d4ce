// Package reactor is the process-wide descriptor table and readiness pump:
// one fde per open descriptor, a pluggable Backend that turns OS readiness
// primitives into a uniform event list, and DoSelect, the single function
// that advances the world by one pass.
package reactor

import "time"

// HandlerFunc is invoked when a descriptor becomes ready. It is detached
// from the fde before being called; a handler that wants to keep watching
// the descriptor must re-register explicitly.
type HandlerFunc func(fd int)

// CloseFunc is invoked once, in registration order, when a descriptor is
// closed through fd_close-equivalent teardown.
type CloseFunc func(fd int)

// Class distinguishes the three socket kinds the incoming-poll heuristic
// tracks separately from the general event-driven descriptor population.
type Class int

const (
	// ClassNone is an ordinary descriptor, serviced only through the
	// general readiness pass.
	ClassNone Class = iota
	// ClassUDP marks UDP/ICP sockets, opportunistically polled between
	// general passes per their own interval counter.
	ClassUDP
	// ClassDNS marks the resolver socket(s).
	ClassDNS
	// ClassTCPListener marks accept sockets.
	ClassTCPListener
)

// fde is the per-descriptor bookkeeping record: open/closed state, the
// currently-armed handlers, a timeout deadline, and the incoming-class tag.
type fde struct {
	open bool
	fd   int

	readHandler  HandlerFunc
	writeHandler HandlerFunc
	closeHandler CloseFunc

	// readPending mirrors the Comm read_pending hint: a buffered reader
	// above the raw socket still has data, so the fde should be treated
	// as readable even if the OS says otherwise.
	readPending bool

	timeoutAt time.Time // zero means no timeout registered
	class     Class
}

func newFde(fd int) *fde {
	return &fde{fd: fd, open: true}
}

func (e *fde) armRead(h HandlerFunc)    { e.readHandler = h }
func (e *fde) armWrite(h HandlerFunc)   { e.writeHandler = h }
func (e *fde) hasReadHandler() bool     { return e.readHandler != nil || e.readPending }
func (e *fde) hasWriteHandler() bool    { return e.writeHandler != nil }
func (e *fde) hasAnyHandler() bool      { return e.hasReadHandler() || e.hasWriteHandler() }
func (e *fde) setTimeout(at time.Time)  { e.timeoutAt = at }
func (e *fde) clearTimeout()            { e.timeoutAt = time.Time{} }
func (e *fde) hasTimeout() bool         { return !e.timeoutAt.IsZero() }
func (e *fde) timedOut(now time.Time) bool {
	return e.hasTimeout() && !now.Before(e.timeoutAt)
}

// detachRead clears and returns the armed read handler, matching the "clear
// before invoking" rule so re-arm inside the handler is explicit.
func (e *fde) detachRead() HandlerFunc {
	h := e.readHandler
	e.readHandler = nil
	e.readPending = false
	return h
}

func (e *fde) detachWrite() HandlerFunc {
	h := e.writeHandler
	e.writeHandler = nil
	return h
}
