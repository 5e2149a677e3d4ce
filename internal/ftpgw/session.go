// Package ftpgw is the client-facing half of the FTP gateway: it speaks
// RFC 959 (plus RFC 2428 EPRT/EPSV and RFC 2389 FEAT) to a downstream
// client, relays each accepted verb to an upstream origin through an
// ftppeer.Peer, and choreographs the separately-lived data connection in
// both passive and active modes.
package ftpgw

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/ftppeer"
	"github.com/squidcore/proxy/internal/logging"
)

// maxCommandLine bounds one control-channel command including CRLF. Input
// that reaches the bound without a line terminator is a 421-class failure.
const maxCommandLine = 2048

// PeerFactory builds the upstream half once the session knows its target.
// Tests substitute a fake; production passes ftppeer.New.
type PeerFactory func(cfg *ftppeer.Config) ftppeer.Peer

// Session is one client control connection and everything hanging off it.
// At most one transaction is current at a time; the data connection is
// valid only while that transaction lives.
type Session struct {
	ID string

	ctrl net.Conn
	rd   *bufio.Reader
	log  logging.FuncLog

	state ServerState

	// Intercepted marks a kernel-redirected connection whose target is
	// derived from the original destination address instead of USER.
	Intercepted bool

	host       string // upstream host:port
	uri        string
	workingDir string

	login    string
	password string
	loggedIn bool

	peer    ftppeer.Peer
	newPeer PeerFactory

	epsvAll bool

	data dataChannel

	renameFrom string
	busy       bool // one current transaction per control connection
}

// NewSession wraps an accepted control connection. host may be empty for a
// non-intercepted session; USER user@host supplies it later.
func NewSession(ctrl net.Conn, host string, intercepted bool, newPeer PeerFactory, log logging.FuncLog) *Session {
	id, _ := uuid.GenerateUUID()
	return &Session{
		ID:          id,
		ctrl:        ctrl,
		rd:          bufio.NewReaderSize(ctrl, maxCommandLine),
		log:         log,
		state:       StateBegin,
		Intercepted: intercepted,
		host:        host,
		workingDir:  "/",
		newPeer:     newPeer,
	}
}

// State exposes the master state for tests and reports.
func (s *Session) State() ServerState { return s.state }

func (s *Session) changeState(next ServerState, reason string) {
	if l := s.logger(); l != nil {
		l.Entry(logging.DebugLevel, "ftp session %s: %s -> %s (%s)", s.ID, s.state, next, reason)
	}
	s.state = next
}

func (s *Session) logger() logging.Logger {
	if s.log == nil {
		return nil
	}
	return s.log()
}

// Serve runs the control-channel loop until the client quits or a fatal
// error moves the session to Error. It owns the connection and closes it.
func (s *Session) Serve() {
	defer s.teardown()

	s.changeState(StateConnected, "greeting")
	if err := s.writeReply(220, "Service ready"); err != nil {
		return
	}

	for s.state != StateError {
		verb, args, err := s.readCommand()
		if err != nil {
			if err.IsCode(ErrSyntax) {
				_ = s.writeReply(421, "Huge request, closing control connection")
				s.changeState(StateError, "overlong command")
			}
			return
		}
		if verb == "" {
			continue
		}
		if verb == "QUIT" {
			_ = s.writeReply(221, "Goodbye")
			return
		}
		s.dispatch(verb, args)
	}
}

// readCommand scans the input for one CRLF-terminated command, skipping
// leading whitespace and empty lines up to the buffer bound. The verb is
// upper-cased so "user x", "USER x" and "User\tx" are one command.
func (s *Session) readCommand() (verb, args string, err errs.Error) {
	for {
		raw, e := s.rd.ReadSlice('\n')
		if e != nil {
			if e == bufio.ErrBufferFull {
				return "", "", ErrSyntax.Error(fmt.Errorf("command exceeds %d bytes", maxCommandLine))
			}
			return "", "", ErrSessionClosed.ErrorParent(e)
		}
		line := strings.TrimRight(string(raw), "\r\n")
		line = strings.TrimLeft(line, " \t")
		if line == "" {
			continue
		}
		sp := strings.IndexAny(line, " \t")
		if sp < 0 {
			return strings.ToUpper(line), "", nil
		}
		return strings.ToUpper(line[:sp]), strings.TrimLeft(line[sp:], " \t"), nil
	}
}

type handlerFunc func(s *Session, args string)

// handlers lists the verbs the gateway relays meaningfully. AUTH is
// deliberately absent: TLS on the control channel is configured per port,
// never negotiated mid-session.
var handlers = map[string]handlerFunc{
	"USER": (*Session).handleUser,
	"PASS": (*Session).handlePass,
	"FEAT": (*Session).handleFeat,
	"SYST": (*Session).handleSyst,
	"TYPE": (*Session).handleType,
	"PWD":  (*Session).handlePwd,
	"CWD":  (*Session).handleCwd,
	"CDUP": (*Session).handleCdup,
	"PASV": (*Session).handlePasv,
	"EPSV": (*Session).handleEpsv,
	"PORT": (*Session).handlePort,
	"EPRT": (*Session).handleEprt,
	"RETR": (*Session).handleRetr,
	"LIST": (*Session).handleList,
	"NLST": (*Session).handleNlst,
	"MLSD": (*Session).handleMlsd,
	"STOR": (*Session).handleStor,
	"APPE": (*Session).handleAppe,
	"SIZE": (*Session).handleSize,
	"MDTM": (*Session).handleMdtm,
	"MFMT": (*Session).handleMfmt,
	"DELE": (*Session).handleDele,
	"MKD":  (*Session).handleMkd,
	"RMD":  (*Session).handleRmd,
	"RNFR": (*Session).handleRnfr,
	"RNTO": (*Session).handleRnto,
	"NOOP": (*Session).handleNoop,
}

func (s *Session) dispatch(verb, args string) {
	if verb == "AUTH" {
		_ = s.writeReply(502, "Command not supported")
		return
	}
	h, ok := handlers[verb]
	if !ok {
		_ = s.writeReply(502, "Unknown or unsupported command")
		return
	}
	if verb != "USER" && !s.Intercepted && s.host == "" {
		_ = s.writeReply(503, "Login with USER first")
		return
	}
	h(s, args)
}

// requirePeer lazily builds and connects the upstream half. A host-level
// failure is 421-class: the session cannot continue without its origin.
func (s *Session) requirePeer() bool {
	if s.peer == nil {
		s.peer = s.newPeer(&ftppeer.Config{
			Hostname:    s.host,
			Login:       s.login,
			Password:    s.password,
			ConnTimeout: 60 * time.Second,
		})
	}
	if err := s.peer.Check(); err != nil {
		s.fatal(421, "Service not available, upstream connection failed")
		return false
	}
	return true
}

// fatal sends the best-matching status then moves the session to Error.
func (s *Session) fatal(code int, msg string) {
	_ = s.writeReply(code, msg)
	s.changeState(StateError, fmt.Sprintf("fatal %d", code))
}

// resetPeer tears down the pinned upstream connection, e.g. when USER
// renames the target host mid-session.
func (s *Session) resetPeer() {
	if s.peer != nil {
		s.peer.Close()
		s.peer = nil
	}
	s.loggedIn = false
	s.login = ""
	s.password = ""
}

func (s *Session) teardown() {
	s.closeDataConnection()
	s.resetPeer()
	if s.ctrl != nil {
		_ = s.ctrl.Close()
	}
}
