package store

import "github.com/squidcore/proxy/internal/errs"

const (
	// ErrReleased is returned when an operation targets an entry that has
	// already transitioned to the released state.
	ErrReleased errs.CodeError = errs.MinStore + iota
	// ErrNoReaders is returned when DELETE_BEHIND is set and a fetch has no
	// subscribed reader to bound memory against; the fetch must abandon.
	ErrNoReaders
	// ErrNotFound is returned by Lookup when no entry exists under the key.
	ErrNotFound
)

func init() {
	errs.Register(errs.MinStore, message)
}

func message(code errs.CodeError) string {
	switch code {
	case ErrReleased:
		return "store: entry already released"
	case ErrNoReaders:
		return "store: delete-behind with no readers, abandoning fetch"
	case ErrNotFound:
		return "store: entry not found"
	default:
		return ""
	}
}
