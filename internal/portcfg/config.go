// Package portcfg parses http_port/https_port/ftp_port directives into
// PortCfg records and turns each into a running listener component that
// hands accepted connections to the HTTP state machine or the FTP gateway.
package portcfg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/tlsopts"
)

// Proto selects which service answers on a port.
type Proto int

const (
	ProtoHTTP Proto = iota
	ProtoHTTPS
	ProtoFTP
)

func (p Proto) String() string {
	switch p {
	case ProtoHTTP:
		return "http"
	case ProtoHTTPS:
		return "https"
	case ProtoFTP:
		return "ftp"
	default:
		return "unknown"
	}
}

// KeepAlive is the per-port TCP keepalive quadruple.
type KeepAlive struct {
	Enabled  bool
	Idle     int // seconds before the first probe
	Interval int // seconds between probes
	Timeout  int // probe count before the connection is dropped
}

// PortCfg is one listening-port descriptor.
type PortCfg struct {
	Proto Proto
	Addr  string // host:port; host may be empty for a wildcard bind

	Intercepted bool
	TProxy      bool
	Accel       bool
	VHost       bool
	SslBump     bool
	DisablePMTU bool

	KeepAlive KeepAlive

	// TLS carries the §4.G server options for https_port (and ftps).
	TLS *tlsopts.ServerOptions

	// MaxConns caps concurrently-accepted connections; zero means the
	// built-in default.
	MaxConns int
}

// Parse reads one port directive: "[addr:]port" followed by flag and
// key=value tokens. TLS tokens are handed to the §4.G parser; an unknown
// token is fatal for listening-port init.
func Parse(proto Proto, tokens []string) (*PortCfg, errs.Error) {
	if len(tokens) == 0 {
		return nil, ErrBadAddress.Error(fmt.Errorf("missing port specification"))
	}

	cfg := &PortCfg{Proto: proto}
	if err := cfg.parseAddr(tokens[0]); err != nil {
		return nil, err
	}

	var tlsTokens []string
	for _, tok := range tokens[1:] {
		switch {
		case tok == "intercept":
			cfg.Intercepted = true
		case tok == "tproxy":
			cfg.TProxy = true
		case tok == "accel":
			cfg.Accel = true
		case tok == "vhost":
			cfg.VHost = true
		case tok == "ssl-bump":
			cfg.SslBump = true
		case tok == "disable-pmtu-discovery":
			cfg.DisablePMTU = true
		case strings.HasPrefix(tok, "tcpkeepalive="):
			if err := cfg.parseKeepAlive(strings.TrimPrefix(tok, "tcpkeepalive=")); err != nil {
				return nil, err
			}
		case tok == "tcpkeepalive":
			cfg.KeepAlive.Enabled = true
		case strings.HasPrefix(tok, "max-conn="):
			n, err := strconv.Atoi(strings.TrimPrefix(tok, "max-conn="))
			if err != nil || n <= 0 {
				return nil, ErrBadDirective.Error(fmt.Errorf("max-conn %q", tok))
			}
			cfg.MaxConns = n
		default:
			// everything else belongs to the TLS token language
			tlsTokens = append(tlsTokens, tok)
		}
	}

	if len(tlsTokens) > 0 {
		so := tlsopts.NewServerOptions()
		if err := tlsopts.ParseServerDirectives(so, tlsTokens); err != nil {
			return nil, ErrBadDirective.ErrorParent(err)
		}
		cfg.TLS = so
	}
	if proto == ProtoHTTPS && cfg.TLS == nil {
		return nil, ErrBadDirective.Error(fmt.Errorf("https_port requires cert= or generate-host-certificates"))
	}

	return cfg, nil
}

// parseAddr accepts "port", "addr:port", and "[v6addr]:port".
func (c *PortCfg) parseAddr(spec string) errs.Error {
	if !strings.Contains(spec, ":") {
		spec = ":" + spec
	}
	host, port, ok := splitHostPort(spec)
	if !ok {
		return ErrBadAddress.Error(fmt.Errorf("address %q", spec))
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 || (n == 0 && host == "") {
		return ErrBadAddress.Error(fmt.Errorf("port %q", port))
	}
	c.Addr = host + ":" + port
	return nil
}

func splitHostPort(spec string) (host, port string, ok bool) {
	i := strings.LastIndex(spec, ":")
	if i < 0 {
		return "", "", false
	}
	host, port = spec[:i], spec[i+1:]
	if strings.HasPrefix(host, "[") {
		if !strings.HasSuffix(host, "]") {
			return "", "", false
		}
		host = strings.Trim(host, "[]")
	}
	return host, port, port != ""
}

func (c *PortCfg) parseKeepAlive(spec string) errs.Error {
	parts := strings.Split(spec, ",")
	if len(parts) != 3 {
		return ErrBadDirective.Error(fmt.Errorf("tcpkeepalive wants IDLE,INTERVAL,TIMEOUT, got %q", spec))
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v <= 0 {
			return ErrBadDirective.Error(fmt.Errorf("tcpkeepalive value %q", p))
		}
		vals[i] = v
	}
	c.KeepAlive = KeepAlive{Enabled: true, Idle: vals[0], Interval: vals[1], Timeout: vals[2]}
	return nil
}
