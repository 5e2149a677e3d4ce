package portcfg

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"syscall"

	"golang.org/x/net/netutil"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/logging"
	"github.com/squidcore/proxy/internal/tlsopts"
)

// defaultMaxConns bounds concurrently-accepted connections per port when
// the directive does not say otherwise.
const defaultMaxConns = 4096

// ConnHandler consumes one accepted (and TLS-wrapped, where applicable)
// connection; the HTTP machine and the FTP gateway each provide one.
type ConnHandler func(conn net.Conn)

// Listener is the config.Component that owns one listening socket. Start
// binds and begins accepting; accepted sockets get the port's keepalive
// quadruple applied, then go to the protocol handler.
type Listener struct {
	cfg     *PortCfg
	handler ConnHandler
	log     logging.FuncLog

	ln      net.Listener
	started atomic.Bool
	running atomic.Bool
}

// NewListener pairs a parsed PortCfg with its protocol handler.
func NewListener(cfg *PortCfg, handler ConnHandler) *Listener {
	return &Listener{cfg: cfg, handler: handler}
}

func (l *Listener) Type() string { return "port" }

func (l *Listener) Init(log logging.FuncLog) { l.log = log }

func (l *Listener) Dependencies() []string { return []string{"reactor"} }

// Cfg exposes the parsed port descriptor.
func (l *Listener) Cfg() *PortCfg { return l.cfg }

// Addr reports the bound address, useful when the config asked for port 0.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Start is clientStartListeningOn: bind, wrap for TLS when configured,
// and run the accept loop.
func (l *Listener) Start() errs.Error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = setListenSockopts(int(fd), l.cfg.TProxy)
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", l.cfg.Addr)
	if err != nil {
		return ErrListen.ErrorParent(err)
	}

	max := l.cfg.MaxConns
	if max <= 0 {
		max = defaultMaxConns
	}
	ln = netutil.LimitListener(ln, max)

	if l.cfg.Proto == ProtoHTTPS && l.cfg.TLS != nil {
		tlsCfg, terr := tlsopts.BuildServer(l.cfg.TLS)
		if terr != nil {
			_ = ln.Close()
			return ErrTLSInit.ErrorParent(terr)
		}
		ln = tls.NewListener(ln, tlsCfg)
	}

	l.ln = ln
	l.started.Store(true)
	l.running.Store(true)

	go l.acceptLoop()
	return nil
}

func (l *Listener) acceptLoop() {
	defer l.running.Store(false)
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.started.Load() {
				if lg := l.logger(); lg != nil {
					lg.Entry(logging.ErrorLevel, "accept on %s failed: %v", l.cfg.Addr, err)
				}
			}
			return
		}
		l.applyKeepAlive(conn)
		go l.handler(conn)
	}
}

// applyKeepAlive sets the per-port keepalive quadruple on the raw socket.
func (l *Listener) applyKeepAlive(conn net.Conn) {
	ka := l.cfg.KeepAlive
	if !ka.Enabled {
		return
	}
	sc, ok := underlyingSyscallConn(conn)
	if !ok {
		return
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		setKeepAliveSockopts(int(fd), ka)
	})
}

func underlyingSyscallConn(conn net.Conn) (syscall.Conn, bool) {
	if tc, ok := conn.(*tls.Conn); ok {
		conn = tc.NetConn()
	}
	sc, ok := conn.(syscall.Conn)
	return sc, ok
}

func (l *Listener) Reload() errs.Error { return nil }

func (l *Listener) Stop() {
	l.started.Store(false)
	if l.ln != nil {
		_ = l.ln.Close()
	}
}

func (l *Listener) IsStarted() bool { return l.started.Load() }

func (l *Listener) IsRunning() bool { return l.running.Load() }

func (l *Listener) logger() logging.Logger {
	if l.log == nil {
		return nil
	}
	return l.log()
}
