package reactor

import "github.com/squidcore/proxy/internal/errs"

const (
	// ErrAlreadyOpen is returned by Open when fd already has a record.
	ErrAlreadyOpen errs.CodeError = errs.MinReactor + iota
	// ErrNotOpen is returned by any operation against a descriptor with no
	// open record; closing a descriptor that is not open is a programmer
	// error, not a runtime condition, matching fd_close's assertion.
	ErrNotOpen
	// ErrBackendFailed wraps a fatal error from the underlying poll/epoll
	// syscall, a system-fatal condition for the owning worker.
	ErrBackendFailed
)

func init() {
	errs.Register(errs.MinReactor, message)
}

func message(code errs.CodeError) string {
	switch code {
	case ErrAlreadyOpen:
		return "reactor: descriptor already open"
	case ErrNotOpen:
		return "reactor: descriptor not open"
	case ErrBackendFailed:
		return "reactor: backend poll failed"
	default:
		return ""
	}
}
