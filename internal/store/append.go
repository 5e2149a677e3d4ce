package store

import (
	"github.com/squidcore/proxy/internal/errs"
)

// Append extends the in-memory tail by buf, matching storeAppend. It
// reports whether the caller's read-handler must be deferred without
// draining (the DELETE_BEHIND backpressure path): DELETE_BEHIND is set,
// there is at least one reader, and the gap between currentLen and the
// slowest reader's offset exceeds DeleteBehindGap. If DELETE_BEHIND is set
// and there are no readers at all, the fetch must abandon (ErrNoReaders).
func (e *Entry) Append(buf []byte) (defer_ bool, err errs.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.flags.Has(DeleteBehind) && len(e.readers) == 0 {
		return false, ErrNoReaders.Error(nil)
	}

	e.mem.buf = append(e.mem.buf, buf...)
	e.mem.currentLen += int64(len(buf))

	if e.flags.Has(DeleteBehind) {
		min := e.minReaderOffsetLocked()
		if min > e.mem.lowestOffset {
			trim := min - e.mem.lowestOffset
			if trim > int64(len(e.mem.buf)) {
				trim = int64(len(e.mem.buf))
			}
			e.mem.buf = e.mem.buf[trim:]
			e.mem.lowestOffset = min
		}
		if e.mem.currentLen-e.mem.lowestOffset > DeleteBehindGap {
			defer_ = true
		}
	}

	e.mu.Unlock()
	e.wakeReaders()
	e.mu.Lock()
	return defer_, nil
}

// Complete marks end-of-body and, per §4.C, computes expires via the
// caller-supplied TTL rule (protocol-specific; see ttl.go).
func (e *Entry) Complete(ttl TTLFunc) {
	e.mu.Lock()
	e.state = Complete
	e.writerActive = false
	if ttl != nil {
		e.Expires = ttl(e)
	}
	e.mu.Unlock()
	e.wakeReaders()
}

// Abort replaces the body with a generated error page, sets ReleaseRequest,
// clears Cachable, and wakes every waiting reader so they observe the
// failure instead of hanging.
func (e *Entry) Abort(errorBody []byte) {
	e.mu.Lock()
	e.mem.buf = append([]byte(nil), errorBody...)
	e.mem.currentLen = int64(len(errorBody))
	e.mem.lowestOffset = 0
	e.flags |= ReleaseRequest
	e.flags &^= Cachable
	e.state = Complete
	e.writerActive = false
	e.mu.Unlock()
	e.wakeReaders()
}

// ClientWaiting reports whether at least one reader is currently attached,
// matching storeClientWaiting.
func (e *Entry) ClientWaiting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.readers) > 0
}

// StartDeleteBehind transitions a complete response into streaming mode:
// called when the body exceeds the configured per-protocol cap and the
// entry cannot be retained in full. It sets DeleteBehind and clears
// Cachable/sets ReleaseRequest, since a body served this way can never be
// replayed to a second reader.
func (e *Entry) StartDeleteBehind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flags |= DeleteBehind | ReleaseRequest
	e.flags &^= Cachable
}
