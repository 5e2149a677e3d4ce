package ftpgw

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/squidcore/proxy/internal/errs"
)

// dataChannel tracks the one data connection a transaction may own. During
// HandleDataRequest exactly one of {conn open, listener open, connector
// pending} holds until the state returns to Connected.
type dataChannel struct {
	mu sync.Mutex

	conn     net.Conn
	listener net.Listener

	// connector marks an active-mode connect that has been requested but
	// not yet performed; the dial happens when the transfer verb arrives.
	connector bool
	remote    *net.TCPAddr

	// parked holds a passive-mode connection accepted before the transfer
	// verb was processed.
	parked  net.Conn
	arrived chan struct{}
}

// handlePasv opens a listening socket on the control connection's local
// address and advertises it in the 227 host,port form.
func (s *Session) handlePasv(string) {
	s.changeState(StateHandlePasv, "handlePasvRequest")
	defer s.changeState(StateConnected, "pasv done")

	addr, err := s.openPassive()
	if err != nil {
		_ = s.writeReply(425, "Cannot open data connection.")
		return
	}
	ip := addr.IP.To4()
	if ip == nil {
		// RFC 959 PASV cannot carry IPv6; the client should use EPSV.
		s.closeDataConnection()
		_ = s.writeReply(425, "Cannot open data connection, use EPSV.")
		return
	}
	_ = s.writeReply(227, fmt.Sprintf("Entering Passive Mode (%d,%d,%d,%d,%d,%d)",
		ip[0], ip[1], ip[2], ip[3], addr.Port>>8, addr.Port&0xff))
}

// handleEpsv implements RFC 2428 extended passive mode, including the ALL
// form that disables subsequent PORT/EPRT.
func (s *Session) handleEpsv(args string) {
	switch strings.ToUpper(strings.TrimSpace(args)) {
	case "", "1", "2":
		// parameterless EPSV uses the protocol of the control connection
	case "ALL":
		s.epsvAll = true
		_ = s.writeReply(200, "EPSV ALL ok")
		return
	default:
		_ = s.writeReply(501, "Unsupported EPSV parameter")
		return
	}

	s.changeState(StateHandleEpsv, "handleEpsvRequest")
	defer s.changeState(StateConnected, "epsv done")

	addr, err := s.openPassive()
	if err != nil {
		_ = s.writeReply(425, "Cannot open data connection.")
		return
	}
	_ = s.writeReply(229, fmt.Sprintf("Entering Extended Passive Mode (|||%d|)", addr.Port))
}

// handlePort parses the RFC 959 h1,h2,h3,h4,p1,p2 form. The advertised
// address must equal the control connection's peer; anything else is a
// hijack attempt and is refused without closing the session.
func (s *Session) handlePort(args string) {
	if s.epsvAll {
		_ = s.writeReply(500, "Rejecting PORT after EPSV ALL")
		return
	}
	s.changeState(StateHandlePort, "handlePortRequest")
	defer s.changeState(StateConnected, "port done")

	addr, err := parsePortArgs(args)
	if err != nil {
		_ = s.writeReply(501, "Invalid parameter")
		return
	}
	if !s.sameAsControlPeer(addr.IP) {
		_ = s.writeReply(501, "Prohibited parameter value")
		return
	}
	s.armActive(addr)
	_ = s.writeReply(200, "PORT command successful")
}

// handleEprt parses the RFC 2428 |proto|addr|port| form with the same
// anti-hijack rule as PORT.
func (s *Session) handleEprt(args string) {
	if s.epsvAll {
		_ = s.writeReply(500, "Rejecting EPRT after EPSV ALL")
		return
	}
	s.changeState(StateHandleEprt, "handleEprtRequest")
	defer s.changeState(StateConnected, "eprt done")

	addr, err := parseEprtArgs(args)
	if err != nil {
		_ = s.writeReply(501, "Invalid parameter")
		return
	}
	if !s.sameAsControlPeer(addr.IP) {
		_ = s.writeReply(501, "Prohibited parameter value")
		return
	}
	s.armActive(addr)
	_ = s.writeReply(200, "EPRT command successful")
}

func parsePortArgs(args string) (*net.TCPAddr, error) {
	parts := strings.Split(strings.TrimSpace(args), ",")
	if len(parts) != 6 {
		return nil, fmt.Errorf("PORT wants 6 numbers, got %d", len(parts))
	}
	var n [6]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("PORT octet %q", p)
		}
		n[i] = v
	}
	port := n[4]<<8 | n[5]
	if port == 0 {
		return nil, fmt.Errorf("PORT port 0")
	}
	return &net.TCPAddr{
		IP:   net.IPv4(byte(n[0]), byte(n[1]), byte(n[2]), byte(n[3])),
		Port: port,
	}, nil
}

func parseEprtArgs(args string) (*net.TCPAddr, error) {
	args = strings.TrimSpace(args)
	if len(args) < 7 {
		return nil, fmt.Errorf("EPRT too short")
	}
	delim := args[0]
	parts := strings.Split(args, string(delim))
	// "", proto, addr, port, ""
	if len(parts) != 5 {
		return nil, fmt.Errorf("EPRT wants 3 fields")
	}
	proto := parts[1]
	if proto != "1" && proto != "2" {
		return nil, fmt.Errorf("EPRT protocol %q", proto)
	}
	ip := net.ParseIP(parts[2])
	if ip == nil {
		return nil, fmt.Errorf("EPRT address %q", parts[2])
	}
	port, err := strconv.Atoi(parts[3])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("EPRT port %q", parts[3])
	}
	return &net.TCPAddr{IP: ip, Port: port}, nil
}

// sameAsControlPeer reports whether ip equals the client's control-channel
// source address.
func (s *Session) sameAsControlPeer(ip net.IP) bool {
	ra, ok := s.ctrl.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return false
	}
	return ra.IP.Equal(ip)
}

// openPassive closes any prior data channel, binds an ephemeral listener on
// the control connection's local address, and starts the accept goroutine.
// An early connection (before the transfer verb) is parked on the session.
func (s *Session) openPassive() (*net.TCPAddr, errs.Error) {
	s.closeDataConnection()

	var laddr net.TCPAddr
	if la, ok := s.ctrl.LocalAddr().(*net.TCPAddr); ok {
		laddr.IP = la.IP
	}
	ln, err := net.ListenTCP("tcp", &laddr)
	if err != nil {
		return nil, ErrDataConnection.ErrorParent(err)
	}

	s.data.mu.Lock()
	s.data.listener = ln
	s.data.arrived = make(chan struct{})
	arrived := s.data.arrived
	s.data.mu.Unlock()

	go func() {
		c, aerr := ln.Accept()
		if aerr != nil {
			return
		}
		s.data.mu.Lock()
		if s.data.listener != ln {
			// channel was torn down while accepting
			s.data.mu.Unlock()
			_ = c.Close()
			return
		}
		s.data.parked = c
		s.data.mu.Unlock()
		close(arrived)
	}()

	return ln.Addr().(*net.TCPAddr), nil
}

// armActive records the client's advertised address; the dial is deferred
// until the transfer verb arrives.
func (s *Session) armActive(addr *net.TCPAddr) {
	s.closeDataConnection()
	s.data.mu.Lock()
	s.data.connector = true
	s.data.remote = addr
	s.data.mu.Unlock()
}

// ensureDataConn produces the open data connection for a transfer verb:
// passive mode waits for the parked or in-flight accept, active mode dials
// the advertised address with SO_REUSEADDR from the control-local address.
func (s *Session) ensureDataConn() (net.Conn, errs.Error) {
	s.data.mu.Lock()
	if c := s.data.conn; c != nil {
		s.data.mu.Unlock()
		return c, nil
	}
	if c := s.data.parked; c != nil {
		s.data.parked = nil
		s.data.conn = c
		s.closeListenerLocked()
		s.data.mu.Unlock()
		return c, nil
	}
	if s.data.listener != nil {
		arrived := s.data.arrived
		s.data.mu.Unlock()
		select {
		case <-arrived:
		case <-time.After(30 * time.Second):
			return nil, ErrDataConnection.Error(fmt.Errorf("timeout waiting for passive data connection"))
		}
		s.data.mu.Lock()
		c := s.data.parked
		s.data.parked = nil
		s.data.conn = c
		s.closeListenerLocked()
		s.data.mu.Unlock()
		if c == nil {
			return nil, ErrDataConnection.Error(fmt.Errorf("passive accept failed"))
		}
		return c, nil
	}
	if s.data.connector {
		remote := s.data.remote
		s.data.mu.Unlock()
		c, err := s.dialActive(remote)
		if err != nil {
			return nil, err
		}
		s.data.mu.Lock()
		s.data.connector = false
		s.data.conn = c
		s.data.mu.Unlock()
		return c, nil
	}
	s.data.mu.Unlock()
	return nil, ErrDataConnection.Error(fmt.Errorf("use PORT or PASV first"))
}

// dialActive connects to the client's advertised data address. The local
// address reuses the control connection's local IP (the origin address the
// client thinks it is talking to, in interception setups) with SO_REUSEADDR;
// the local port is left to the kernel.
func (s *Session) dialActive(remote *net.TCPAddr) (net.Conn, errs.Error) {
	var local *net.TCPAddr
	if la, ok := s.ctrl.LocalAddr().(*net.TCPAddr); ok {
		local = &net.TCPAddr{IP: la.IP}
	}
	d := net.Dialer{
		Timeout:   30 * time.Second,
		LocalAddr: local,
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	c, err := d.Dial("tcp", remote.String())
	if err != nil {
		return nil, ErrDataConnection.ErrorParent(err)
	}
	return c, nil
}

// hasDataConn reports whether a live data connection exists right now.
func (s *Session) hasDataConn() bool {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	return s.data.conn != nil
}

func (s *Session) closeListenerLocked() {
	if s.data.listener != nil {
		_ = s.data.listener.Close()
		s.data.listener = nil
	}
}

// closeDataConnection tears down every piece of the data channel. It is
// idempotent and safe to call from any exit path.
func (s *Session) closeDataConnection() {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if s.data.conn != nil {
		_ = s.data.conn.Close()
		s.data.conn = nil
	}
	if s.data.parked != nil {
		_ = s.data.parked.Close()
		s.data.parked = nil
	}
	s.closeListenerLocked()
	s.data.connector = false
	s.data.remote = nil
}
