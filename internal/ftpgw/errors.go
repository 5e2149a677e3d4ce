package ftpgw

import "github.com/squidcore/proxy/internal/errs"

const (
	// ErrSyntax covers malformed or overlong control-channel input.
	ErrSyntax errs.CodeError = errs.MinFTPGateway + iota
	// ErrBadSequence is returned for a command the session state forbids.
	ErrBadSequence
	// ErrDataConnection covers passive-listen, accept, and active-connect
	// failures on the data channel.
	ErrDataConnection
	// ErrProhibitedParameter flags a PORT/EPRT address that does not match
	// the control connection's peer.
	ErrProhibitedParameter
	// ErrUpstream wraps a failure relayed from the origin FTP server.
	ErrUpstream
	// ErrSessionClosed means the control connection went away mid-command.
	ErrSessionClosed
)

func init() {
	errs.Register(errs.MinFTPGateway, message)
}

func message(code errs.CodeError) string {
	switch code {
	case ErrSyntax:
		return "ftp gateway: invalid control-channel syntax"
	case ErrBadSequence:
		return "ftp gateway: command not allowed in this state"
	case ErrDataConnection:
		return "ftp gateway: data connection failed"
	case ErrProhibitedParameter:
		return "ftp gateway: prohibited parameter value"
	case ErrUpstream:
		return "ftp gateway: upstream server failure"
	case ErrSessionClosed:
		return "ftp gateway: control connection closed"
	default:
		return "ftp gateway: error"
	}
}
