package ftppeer

import (
	"testing"
	"time"
)

func TestValidateRequiresHostPort(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty config validated")
	}

	cfg.Hostname = "ftp.example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("hostname without port validated")
	}

	cfg.Hostname = "ftp.example.com:21"
	cfg.ConnTimeout = 30 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestFeaturesTrackConfigCapabilities(t *testing.T) {
	p := New(&Config{Hostname: "ftp.example.com:21"})
	feats := map[string]bool{}
	for _, f := range p.Features() {
		feats[f] = true
	}
	for _, want := range []string{"SIZE", "MDTM", "PASV", "EPSV", "MLSD"} {
		if !feats[want] {
			t.Fatalf("default features missing %s: %v", want, feats)
		}
	}

	p = New(&Config{Hostname: "ftp.example.com:21", DisableEPSV: true, DisableMLSD: true})
	for _, f := range p.Features() {
		if f == "EPSV" || f == "MLSD" {
			t.Fatalf("disabled capability %s still advertised", f)
		}
	}
}

func TestOperationsOnUnconnectedPeerFailCleanly(t *testing.T) {
	p := New(&Config{Hostname: "127.0.0.1:1", ConnTimeout: 50 * time.Millisecond})
	if _, err := p.CurrentDir(); err == nil {
		t.Fatal("CurrentDir against a closed port succeeded")
	}
}
