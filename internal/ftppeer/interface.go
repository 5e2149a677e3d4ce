// Package ftppeer is the upstream half of the FTP gateway: a thread-safe
// client for the origin FTP server with automatic reconnection and NOOP
// health checks. The gateway translates each client command into one call
// here; this package owns the upstream control connection and its data
// channels, wrapping github.com/jlaffaye/ftp.
package ftppeer

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	libftp "github.com/jlaffaye/ftp"

	"github.com/squidcore/proxy/internal/errs"
)

// Peer is the upstream-facing FTP surface the gateway consumes. All methods
// are safe for concurrent use and re-establish a dropped connection on the
// next operation.
type Peer interface {
	// Connect establishes the upstream control connection per the
	// registered configuration, reusing a live one when the NOOP probe
	// succeeds.
	Connect() errs.Error

	// Check retrieves a valid connection and probes it with NOOP.
	Check() errs.Error

	// Close sends QUIT on the current connection, if any.
	Close()

	// NameList issues NLST.
	NameList(path string) ([]string, errs.Error)

	// List issues MLSD or LIST.
	List(path string) ([]*libftp.Entry, errs.Error)

	// ChangeDir issues CWD.
	ChangeDir(path string) errs.Error

	// ChangeDirToParent issues CDUP.
	ChangeDirToParent() errs.Error

	// CurrentDir issues PWD.
	CurrentDir() (string, errs.Error)

	// FileSize issues SIZE.
	FileSize(path string) (int64, errs.Error)

	// GetTime issues MDTM and returns a UTC time.
	GetTime(path string) (time.Time, errs.Error)

	// SetTime issues MFMT, or writable MDTM when configured for it.
	SetTime(path string, t time.Time) errs.Error

	// Retr issues RETR; the returned response must be closed to release
	// the upstream data connection.
	Retr(path string) (*libftp.Response, errs.Error)

	// RetrFrom issues REST followed by RETR at the given offset.
	RetrFrom(path string, offset uint64) (*libftp.Response, errs.Error)

	// Stor issues STOR with the reader as the body.
	Stor(path string, r io.Reader) errs.Error

	// Append issues APPE with the reader as the body.
	Append(path string, r io.Reader) errs.Error

	// Rename issues RNFR/RNTO.
	Rename(from, to string) errs.Error

	// Delete issues DELE.
	Delete(path string) errs.Error

	// MakeDir issues MKD.
	MakeDir(path string) errs.Error

	// RemoveDir issues RMD.
	RemoveDir(path string) errs.Error

	// Features reports the upstream feature verbs the gateway splices
	// into its own FEAT reply.
	Features() []string
}

// New returns a Peer bound to cfg. Unlike a pooled client, no connection is
// attempted until the first operation: the gateway greets its client before
// the upstream target is even known.
func New(cfg *Config) Peer {
	p := &peer{
		cfg: new(atomic.Value),
		cli: new(atomic.Value),
	}
	p.setConfig(cfg)
	return p
}

type peer struct {
	m sync.Mutex

	cfg *atomic.Value
	cli *atomic.Value
}
