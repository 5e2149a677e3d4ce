package portcfg

import "github.com/squidcore/proxy/internal/errs"

const (
	// ErrBadDirective covers unparseable port-directive tokens.
	ErrBadDirective errs.CodeError = errs.MinPortCfg + iota
	// ErrBadAddress covers an unusable [addr:]port specification.
	ErrBadAddress
	// ErrListen wraps a bind/listen failure at startup.
	ErrListen
	// ErrTLSInit wraps a TLS context build failure for an https_port.
	ErrTLSInit
)

func init() {
	errs.Register(errs.MinPortCfg, message)
}

func message(code errs.CodeError) string {
	switch code {
	case ErrBadDirective:
		return "port: unknown or malformed directive token"
	case ErrBadAddress:
		return "port: invalid listen address"
	case ErrListen:
		return "port: cannot bind listening socket"
	case ErrTLSInit:
		return "port: TLS context initialization failed"
	default:
		return "port: error"
	}
}
