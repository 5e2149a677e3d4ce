package store

import "github.com/squidcore/proxy/internal/errs"

// Subscribe registers a new reader starting at offset 0 and returns a
// token used for Read/Ack/Unsubscribe. Subscribing to a released entry is
// refused: once released, no new reader may join (§3 invariant).
func (e *Entry) Subscribe() (*Reader, errs.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Released {
		return nil, ErrReleased.Error(nil)
	}
	r := &Reader{notify: make(chan struct{}, 1)}
	e.readers[r] = struct{}{}
	return r, nil
}

// Unsubscribe drops a reader. If the entry is marked ReleaseRequest and no
// readers and no active writer remain, the caller should Release it.
func (e *Entry) Unsubscribe(r *Reader) {
	e.mu.Lock()
	delete(e.readers, r)
	drain := e.flags.Has(ReleaseRequest) && len(e.readers) == 0 && !e.writerActive
	e.mu.Unlock()
	if drain {
		e.mu.Lock()
		e.state = Released
		e.mu.Unlock()
	}
}

// minReaderOffsetLocked returns the smallest offset among subscribed
// readers, or currentLen if there are none (meaning no backpressure need
// apply — callers distinguish "no readers" separately for the abandon rule).
func (e *Entry) minReaderOffsetLocked() int64 {
	min := e.mem.currentLen
	first := true
	for r := range e.readers {
		if first || r.offset < min {
			min = r.offset
			first = false
		}
	}
	return min
}

// wakeReaders notifies every subscribed reader that new bytes or a state
// transition are available. It takes e.mu itself to snapshot the readers and
// releases it before the notify sends, so callers must not hold e.mu.
func (e *Entry) wakeReaders() {
	e.mu.Lock()
	rs := make([]*Reader, 0, len(e.readers))
	for r := range e.readers {
		rs = append(rs, r)
	}
	e.mu.Unlock()
	for _, r := range rs {
		select {
		case r.notify <- struct{}{}:
		default:
		}
	}
}

// Wait blocks until new bytes are available past r's last observed offset
// or the entry leaves Incomplete state.
func (r *Reader) Wait() <-chan struct{} { return r.notify }

// ReadFrom returns the bytes available to r since its last Ack and the
// entry's current state.
func (e *Entry) ReadFrom(r *Reader) ([]byte, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.offset >= e.mem.currentLen {
		return nil, e.state
	}
	start := r.offset - e.mem.lowestOffset
	if start < 0 {
		// the reader lagged behind a delete-behind trim; it can never
		// recover the discarded bytes.
		start = 0
		r.offset = e.mem.lowestOffset
	}
	out := e.mem.buf[start:]
	return out, e.state
}

// Ack advances r's offset after the caller has written n bytes to its
// client socket. Under DELETE_BEHIND it also trims the bytes every reader
// has now consumed, so Gap shrinks as the slowest reader catches up.
func (e *Entry) Ack(r *Reader, n int64) {
	e.mu.Lock()
	r.offset += n
	if e.flags.Has(DeleteBehind) {
		if min := e.minReaderOffsetLocked(); min > e.mem.lowestOffset {
			trim := min - e.mem.lowestOffset
			if trim > int64(len(e.mem.buf)) {
				trim = int64(len(e.mem.buf))
			}
			e.mem.buf = e.mem.buf[trim:]
			e.mem.lowestOffset = min
		}
	}
	e.mu.Unlock()
}
