package httpx

import (
	"bufio"
	"fmt"
	"strings"
	"testing"
)

func parseString(t *testing.T, raw string, max int) (*Request, error) {
	t.Helper()
	req, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)), max)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func TestParseAbsoluteURI(t *testing.T) {
	req, err := parseString(t, "GET http://origin.example/a HTTP/1.1\r\nHost: origin.example\r\n\r\n", 0)
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != "GET" || req.Host != "origin.example" || req.URL.Path != "/a" {
		t.Fatalf("parsed %+v", req)
	}
	if req.OriginAddr() != "origin.example:80" {
		t.Fatalf("origin addr %q", req.OriginAddr())
	}
}

func TestParseOriginFormUsesHostHeader(t *testing.T) {
	req, err := parseString(t, "GET /a HTTP/1.1\r\nHost: accel.example:8080\r\n\r\n", 0)
	if err != nil {
		t.Fatal(err)
	}
	if req.Host != "accel.example:8080" || req.CanonicalURL() != "http://accel.example:8080/a" {
		t.Fatalf("parsed host=%q url=%q", req.Host, req.CanonicalURL())
	}
}

func TestParseConnectAuthorityForm(t *testing.T) {
	req, err := parseString(t, "CONNECT origin.example:443 HTTP/1.1\r\nHost: origin.example:443\r\n\r\n", 0)
	if err != nil {
		t.Fatal(err)
	}
	if req.OriginAddr() != "origin.example:443" {
		t.Fatalf("origin addr %q", req.OriginAddr())
	}
}

func TestHostRequiredForHTTP11(t *testing.T) {
	_, err := parseString(t, "GET /a HTTP/1.1\r\n\r\n", 0)
	if err == nil {
		t.Fatal("1.1 request without Host parsed")
	}

	if _, err := parseString(t, "GET http://h/a HTTP/1.0\r\n\r\n", 0); err != nil {
		t.Fatalf("1.0 request without Host rejected: %v", err)
	}
}

func TestUnknownMethodRefused(t *testing.T) {
	_, err := parseString(t, "FROB http://h/a HTTP/1.1\r\nHost: h\r\n\r\n", 0)
	if err == nil {
		t.Fatal("unknown method parsed")
	}
}

func TestHeaderSizeBoundary(t *testing.T) {
	base := "GET http://h/a HTTP/1.1\r\nHost: h\r\nX-Pad: "
	tail := "\r\n\r\n"

	const max = 512
	pad := max - len(base) - len(tail)
	raw := base + strings.Repeat("x", pad) + tail
	if len(raw) != max {
		t.Fatalf("test construction: block is %d bytes", len(raw))
	}

	if _, err := parseString(t, raw, max); err != nil {
		t.Fatalf("request exactly at the bound rejected: %v", err)
	}

	over := base + strings.Repeat("x", pad+1) + tail
	_, err := parseString(t, over, max)
	if err == nil {
		t.Fatal("request one byte over the bound parsed")
	}
}

func TestKeepAliveDefaults(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"GET http://h/ HTTP/1.1\r\nHost: h\r\n\r\n", true},
		{"GET http://h/ HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n", false},
		{"GET http://h/ HTTP/1.0\r\n\r\n", false},
		{"GET http://h/ HTTP/1.0\r\nConnection: keep-alive\r\n\r\n", true},
	}
	for _, c := range cases {
		req, err := parseString(t, c.raw, 0)
		if err != nil {
			t.Fatal(err)
		}
		if req.WantsKeepAlive() != c.want {
			t.Fatalf("keepalive for %q = %v", c.raw, !c.want)
		}
	}
}

func TestParseRequestWithBody(t *testing.T) {
	req, err := parseString(t, "PUT http://h/a HTTP/1.1\r\nHost: h\r\nContent-Length: 4\r\n\r\nbody", 0)
	if err != nil {
		t.Fatal(err)
	}
	if req.Body == nil {
		t.Fatal("body reader missing")
	}
	buf := make([]byte, 8)
	n, _ := req.Body.Read(buf)
	if string(buf[:n]) != "body" {
		t.Fatalf("body %q", buf[:n])
	}
	_ = fmt.Sprintf("%v", req)
}
