package ftppeer

import "github.com/squidcore/proxy/internal/errs"

const (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig errs.CodeError = errs.MinFTPPeer + iota
	// ErrNotInitialized means the peer holds no usable configuration.
	ErrNotInitialized
	// ErrConnect wraps a dial or login failure against the upstream server.
	ErrConnect
	// ErrCheck wraps a failed NOOP health probe.
	ErrCheck
	// ErrCommand wraps an upstream-rejected FTP command.
	ErrCommand
)

func init() {
	errs.Register(errs.MinFTPPeer, message)
}

func message(code errs.CodeError) string {
	switch code {
	case ErrInvalidConfig:
		return "ftp peer: invalid config"
	case ErrNotInitialized:
		return "ftp peer: not initialized"
	case ErrConnect:
		return "ftp peer: cannot connect or login to upstream server"
	case ErrCheck:
		return "ftp peer: connection check (NOOP) failed"
	case ErrCommand:
		return "ftp peer: upstream command failed"
	default:
		return "ftp peer: error"
	}
}
