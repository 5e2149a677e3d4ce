package httpx

import "github.com/squidcore/proxy/internal/errs"

const (
	// ErrParseRequest covers malformed request lines and headers.
	ErrParseRequest errs.CodeError = errs.MinHTTPTxn + iota
	// ErrHeaderTooBig means the input exceeded maxRequestHeaderSize.
	ErrHeaderTooBig
	// ErrMethodNotImplemented flags an unrecognized request method.
	ErrMethodNotImplemented
	// ErrMissingHost flags an HTTP/1.1 request without Host.
	ErrMissingHost
	// ErrForwardDenied means the forwarding chooser refused the request.
	ErrForwardDenied
	// ErrOriginConnect wraps dial/DNS failures against the origin.
	ErrOriginConnect
	// ErrOriginRead wraps a failure while reading the origin's response.
	ErrOriginRead
	// ErrClientGone means the client socket failed mid-response.
	ErrClientGone
)

func init() {
	errs.Register(errs.MinHTTPTxn, message)
}

func message(code errs.CodeError) string {
	switch code {
	case ErrParseRequest:
		return "http: malformed request"
	case ErrHeaderTooBig:
		return "http: request header too large"
	case ErrMethodNotImplemented:
		return "http: method not implemented"
	case ErrMissingHost:
		return "http: Host header required"
	case ErrForwardDenied:
		return "http: forwarding denied"
	case ErrOriginConnect:
		return "http: cannot reach origin"
	case ErrOriginRead:
		return "http: error reading origin response"
	case ErrClientGone:
		return "http: client connection failed"
	default:
		return "http: error"
	}
}
