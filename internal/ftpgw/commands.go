package ftpgw

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/squidcore/proxy/internal/ftppeer"
	"github.com/squidcore/proxy/internal/logging"
)

// handleUser records the username and, in the user@host proxy form, the
// upstream target. Renaming the host mid-session tears down the pinned
// upstream connection and resets login. Hosts compare case-insensitively
// (DNS names are); paths never do.
func (s *Session) handleUser(args string) {
	if args == "" {
		_ = s.writeReply(501, "Missing username")
		return
	}

	user := args
	host := s.host
	if i := strings.LastIndex(args, "@"); i >= 0 && !s.Intercepted {
		user = args[:i]
		host = args[i+1:]
		if host != "" && !strings.Contains(host, ":") {
			host += ":21"
		}
	}
	if host == "" {
		_ = s.writeReply(501, "Missing host in USER name@host")
		return
	}

	if s.host != "" && !strings.EqualFold(host, s.host) {
		s.resetPeer()
	}
	s.host = host
	s.login = user
	s.uri = "ftp://" + strings.ToLower(hostOnly(host)) + s.workingDir

	_ = s.writeReply(331, "User name okay, need password")
}

func hostOnly(hostport string) string {
	if i := strings.LastIndex(hostport, ":"); i >= 0 {
		return hostport[:i]
	}
	return hostport
}

// handlePass performs the upstream login with the credentials gathered so
// far. A rejected login is recoverable; a host-level failure is not.
func (s *Session) handlePass(args string) {
	s.changeState(StateHandlePass, "handlePassRequest")
	defer func() {
		if s.state == StateHandlePass {
			s.changeState(StateConnected, "pass done")
		}
	}()

	if s.login == "" && !s.Intercepted {
		_ = s.writeReply(503, "Login with USER first")
		return
	}
	s.password = args

	if s.peer != nil {
		s.peer.Close()
		s.peer = nil
	}
	p := s.newPeer(&ftppeer.Config{
		Hostname:    s.host,
		Login:       s.login,
		Password:    s.password,
		ConnTimeout: 60 * time.Second,
	})
	if err := p.Connect(); err != nil {
		if l := s.logger(); l != nil {
			l.Entry(logging.InfoLevel, "ftp session %s: upstream login failed: %v", s.ID, err)
		}
		_ = s.writeReply(530, "Login incorrect")
		return
	}
	s.peer = p
	s.loggedIn = true
	_ = s.writeReply(230, "User logged in, proceed")
}

// handleFeat splices locally-implemented extensions with whatever the
// upstream advertises, in the quoted relay preamble format.
func (s *Session) handleFeat(string) {
	s.changeState(StateHandleFeat, "handleFeatRequest")
	defer s.changeState(StateConnected, "feat done")

	var upstream []string
	if s.peer != nil {
		upstream = s.peer.Features()
	}
	_ = s.writeRelayReply(BuildFeatReply(upstream))
}

func (s *Session) handleSyst(string) {
	_ = s.writeReply(215, "UNIX Type: L8")
}

// handleType accepts ASCII and Image; everything is relayed as a byte
// stream regardless, so the distinction only matters to the client.
func (s *Session) handleType(args string) {
	switch strings.ToUpper(strings.TrimSpace(args)) {
	case "A", "A N", "I", "L 8":
		_ = s.writeReply(200, "Type okay")
	default:
		_ = s.writeReply(504, "Unsupported TYPE parameter")
	}
}

func (s *Session) handlePwd(string) {
	_ = s.writeReply(257, fmt.Sprintf("%q is the current directory", s.workingDir))
}

func (s *Session) handleCwd(args string) {
	s.changeState(StateHandleCwd, "handleCwdRequest")
	defer s.changeState(StateConnected, "cwd done")

	if args == "" {
		_ = s.writeReply(501, "Missing directory")
		return
	}
	if !s.requirePeer() {
		return
	}
	if err := s.peer.ChangeDir(args); err != nil {
		_ = s.writeReply(550, "Failed to change directory")
		return
	}
	if path.IsAbs(args) {
		s.workingDir = path.Clean(args)
	} else {
		s.workingDir = path.Join(s.workingDir, args)
	}
	_ = s.writeReply(250, "Directory successfully changed")
}

func (s *Session) handleCdup(string) {
	s.changeState(StateHandleCdup, "handleCdupRequest")
	defer s.changeState(StateConnected, "cdup done")

	if !s.requirePeer() {
		return
	}
	if err := s.peer.ChangeDirToParent(); err != nil {
		_ = s.writeReply(550, "Failed to change directory")
		return
	}
	s.workingDir = path.Dir(s.workingDir)
	_ = s.writeReply(250, "Directory successfully changed")
}

func (s *Session) handleSize(args string) {
	if args == "" {
		_ = s.writeReply(501, "Missing file name")
		return
	}
	if !s.requirePeer() {
		return
	}
	n, err := s.peer.FileSize(args)
	if err != nil {
		_ = s.writeReply(550, "Could not get file size")
		return
	}
	_ = s.writeReply(213, fmt.Sprintf("%d", n))
}

// timeValFormat is the RFC 3659 time-val layout shared by MDTM and MFMT.
const timeValFormat = "20060102150405"

func (s *Session) handleMdtm(args string) {
	if args == "" {
		_ = s.writeReply(501, "Missing file name")
		return
	}
	if !s.requirePeer() {
		return
	}
	t, err := s.peer.GetTime(args)
	if err != nil {
		_ = s.writeReply(550, "Could not get file modification time")
		return
	}
	_ = s.writeReply(213, t.UTC().Format(timeValFormat))
}

func (s *Session) handleMfmt(args string) {
	sp := strings.IndexAny(args, " \t")
	if sp < 0 {
		_ = s.writeReply(501, "MFMT wants time-val and file name")
		return
	}
	t, err := time.ParseInLocation(timeValFormat, args[:sp], time.UTC)
	if err != nil {
		_ = s.writeReply(501, "Invalid time-val")
		return
	}
	name := strings.TrimLeft(args[sp:], " \t")
	if !s.requirePeer() {
		return
	}
	if e := s.peer.SetTime(name, t); e != nil {
		_ = s.writeReply(550, "Could not set file modification time")
		return
	}
	_ = s.writeReply(213, fmt.Sprintf("Modify=%s; %s", t.UTC().Format(timeValFormat), name))
}

func (s *Session) handleDele(args string) {
	if args == "" {
		_ = s.writeReply(501, "Missing file name")
		return
	}
	if !s.requirePeer() {
		return
	}
	if err := s.peer.Delete(args); err != nil {
		_ = s.writeReply(550, "Delete operation failed")
		return
	}
	_ = s.writeReply(250, "Delete operation successful")
}

func (s *Session) handleMkd(args string) {
	if args == "" {
		_ = s.writeReply(501, "Missing directory name")
		return
	}
	if !s.requirePeer() {
		return
	}
	if err := s.peer.MakeDir(args); err != nil {
		_ = s.writeReply(550, "Create directory operation failed")
		return
	}
	_ = s.writeReply(257, fmt.Sprintf("%q created", args))
}

func (s *Session) handleRmd(args string) {
	if args == "" {
		_ = s.writeReply(501, "Missing directory name")
		return
	}
	if !s.requirePeer() {
		return
	}
	if err := s.peer.RemoveDir(args); err != nil {
		_ = s.writeReply(550, "Remove directory operation failed")
		return
	}
	_ = s.writeReply(250, "Remove directory operation successful")
}

func (s *Session) handleRnfr(args string) {
	if args == "" {
		_ = s.writeReply(501, "Missing file name")
		return
	}
	s.renameFrom = args
	_ = s.writeReply(350, "Ready for RNTO")
}

func (s *Session) handleRnto(args string) {
	if s.renameFrom == "" {
		_ = s.writeReply(503, "RNFR required first")
		return
	}
	if args == "" {
		_ = s.writeReply(501, "Missing file name")
		return
	}
	from := s.renameFrom
	s.renameFrom = ""
	if !s.requirePeer() {
		return
	}
	if err := s.peer.Rename(from, args); err != nil {
		_ = s.writeReply(550, "Rename failed")
		return
	}
	_ = s.writeReply(250, "Rename successful")
}

func (s *Session) handleNoop(string) {
	_ = s.writeReply(200, "NOOP ok")
}
