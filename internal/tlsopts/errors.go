// Package tlsopts implements the TLS PeerOptions/ServerOptions
// configuration engine (§4.G): the declarative `cert=/key=/options=/
// min-version=` token language, context construction, and the dynamic
// host-certificate signing CA used by SslBump interception. Grounded on
// nabbar-golib/certificates (config.go, model.go, interface.go) and its
// auth/ca/curves/tlsversion subpackages; the token-language parsers
// (options=, flags=) are new, since squid's specific vocabulary has no
// teacher analogue, but follow the same subpackage-per-vocabulary shape.
package tlsopts

import "github.com/squidcore/proxy/internal/errs"

const (
	// ErrParseToken is fatal for listening-port init and logged-only for
	// outgoing connections, per §4.G "unknown tokens produce a parse error".
	ErrParseToken errs.CodeError = errs.MinTLSOptions + iota
	// ErrMissingCert is returned when key= is given without a preceding cert=.
	ErrMissingCert
	// ErrLoadCert wraps a tls.LoadX509KeyPair/x509.CertPool failure.
	ErrLoadCert
	// ErrReparse is returned when Parse is invoked a second time on an
	// already-parsed option set without an explicit reparse request.
	ErrReparse
	// ErrCertDB wraps an on-disk certificate-database failure.
	ErrCertDB
)

func init() {
	errs.Register(errs.MinTLSOptions, message)
}

func message(code errs.CodeError) string {
	switch code {
	case ErrParseToken:
		return "tlsopts: unrecognized configuration token"
	case ErrMissingCert:
		return "tlsopts: key= given without a preceding cert="
	case ErrLoadCert:
		return "tlsopts: failed to load certificate material"
	case ErrReparse:
		return "tlsopts: options already parsed, reparse not requested"
	case ErrCertDB:
		return "tlsopts: certificate database failure"
	default:
		return ""
	}
}
