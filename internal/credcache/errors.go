package credcache

import "github.com/squidcore/proxy/internal/errs"

const (
	// ErrUnknownScheme is returned when a Credential names a scheme with no
	// registered TTL function.
	ErrUnknownScheme errs.CodeError = errs.MinCredCache + iota
)

func init() {
	errs.Register(errs.MinCredCache, message)
}

func message(code errs.CodeError) string {
	switch code {
	case ErrUnknownScheme:
		return "credcache: unknown authentication scheme"
	default:
		return ""
	}
}
