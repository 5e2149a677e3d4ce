package portcfg

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"
)

func TestParseBarePort(t *testing.T) {
	cfg, err := Parse(ProtoHTTP, []string{"3128"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":3128" || cfg.Proto != ProtoHTTP {
		t.Fatalf("parsed %+v", cfg)
	}
}

func TestParseAddrPortWithFlags(t *testing.T) {
	cfg, err := Parse(ProtoHTTP, []string{"127.0.0.1:3128", "intercept", "tproxy", "disable-pmtu-discovery"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "127.0.0.1:3128" || !cfg.Intercepted || !cfg.TProxy || !cfg.DisablePMTU {
		t.Fatalf("parsed %+v", cfg)
	}
}

func TestParseKeepAliveQuadruple(t *testing.T) {
	cfg, err := Parse(ProtoFTP, []string{"2121", "tcpkeepalive=60,30,3"})
	if err != nil {
		t.Fatal(err)
	}
	ka := cfg.KeepAlive
	if !ka.Enabled || ka.Idle != 60 || ka.Interval != 30 || ka.Timeout != 3 {
		t.Fatalf("keepalive %+v", ka)
	}

	if _, err := Parse(ProtoFTP, []string{"2121", "tcpkeepalive=60,30"}); err == nil {
		t.Fatal("two-value tcpkeepalive accepted")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	for _, toks := range [][]string{
		{},
		{"0"},
		{"70000"},
		{"notaport"},
	} {
		if _, err := Parse(ProtoHTTP, toks); err == nil {
			t.Fatalf("accepted %v", toks)
		}
	}
}

func TestHTTPSRequiresTLSConfig(t *testing.T) {
	if _, err := Parse(ProtoHTTPS, []string{"443"}); err == nil {
		t.Fatal("https_port without TLS tokens accepted")
	}
}

func TestListenerHandsConnectionsToHandler(t *testing.T) {
	cfg, err := Parse(ProtoHTTP, []string{"127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan string, 1)
	l := NewListener(cfg, func(conn net.Conn) {
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		got <- strings.TrimSpace(line)
	})
	l.Init(nil)
	if e := l.Start(); e != nil {
		t.Fatal(e)
	}
	defer l.Stop()

	c, derr := net.Dial("tcp", l.Addr().String())
	if derr != nil {
		t.Fatal(derr)
	}
	_, _ = c.Write([]byte("ping\n"))
	_ = c.Close()

	select {
	case s := <-got:
		if s != "ping" {
			t.Fatalf("handler saw %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestStopEndsAcceptLoop(t *testing.T) {
	cfg, _ := Parse(ProtoHTTP, []string{"127.0.0.1:0"})
	l := NewListener(cfg, func(conn net.Conn) { _ = conn.Close() })
	l.Init(nil)
	if e := l.Start(); e != nil {
		t.Fatal(e)
	}
	l.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for l.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if l.IsRunning() {
		t.Fatal("accept loop still running after Stop")
	}
	if l.IsStarted() {
		t.Fatal("listener still reports started after Stop")
	}
}
