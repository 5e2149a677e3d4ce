// Package httpx is the HTTP transaction state machine: client-side request
// ingestion, the store-or-forward decision, the server-side fetch that
// writes into a StoreEntry, and the write-back that drains the entry to the
// client socket with the delete-behind backpressure discipline.
package httpx

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/squidcore/proxy/internal/errs"
)

// DefaultMaxRequestHeaderSize bounds the request line plus headers.
const DefaultMaxRequestHeaderSize = 64 * 1024

// knownMethods are the verbs the machine recognizes; anything else is a
// 501-class failure before any forwarding decision is made.
var knownMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "DELETE": true,
	"OPTIONS": true, "TRACE": true, "CONNECT": true, "PATCH": true,
}

// Request is one parsed client request plus the un-consumed body reader.
type Request struct {
	Method string
	RawURL string
	URL    *url.URL
	Proto  string
	Major  int
	Minor  int
	Header http.Header
	Host   string

	// Body is bounded by Content-Length; nil when the request has none.
	Body io.Reader

	// HeaderSize is the byte count of the request line plus headers,
	// tracked as out.headers_sz is for responses.
	HeaderSize int
}

// ParseRequest buffers input until a full request line plus headers are
// present or the block exceeds max bytes. A block of exactly max bytes
// parses; one byte more is refused with ErrHeaderTooBig (session-fatal,
// 431-equivalent).
func ParseRequest(rd *bufio.Reader, max int) (*Request, errs.Error) {
	if max <= 0 {
		max = DefaultMaxRequestHeaderSize
	}

	block, err := readHeaderBlock(rd, max)
	if err != nil {
		return nil, err
	}

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(block)))
	line, e := tp.ReadLine()
	if e != nil {
		return nil, ErrParseRequest.ErrorParent(e)
	}

	method, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, ErrParseRequest.Error(fmt.Errorf("request line %q", line))
	}
	rawURL, proto, ok := strings.Cut(rest, " ")
	if !ok {
		// HTTP/0.9-style simple request; refuse rather than guess
		return nil, ErrParseRequest.Error(fmt.Errorf("request line %q", line))
	}

	if !knownMethods[method] {
		return nil, ErrMethodNotImplemented.Error(fmt.Errorf("method %q", method))
	}

	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok {
		return nil, ErrParseRequest.Error(fmt.Errorf("version %q", proto))
	}

	mimeHeader, e := tp.ReadMIMEHeader()
	if e != nil && e != io.EOF {
		return nil, ErrParseRequest.ErrorParent(e)
	}
	header := http.Header(mimeHeader)

	req := &Request{
		Method:     method,
		RawURL:     rawURL,
		Proto:      proto,
		Major:      major,
		Minor:      minor,
		Header:     header,
		HeaderSize: len(block),
	}

	if err := req.resolveURL(); err != nil {
		return nil, err
	}

	if major == 1 && minor >= 1 && req.Host == "" {
		return nil, ErrMissingHost.Error(nil)
	}

	if cl := header.Get("Content-Length"); cl != "" {
		n, e := strconv.ParseInt(cl, 10, 64)
		if e != nil || n < 0 {
			return nil, ErrParseRequest.Error(fmt.Errorf("Content-Length %q", cl))
		}
		if n > 0 {
			req.Body = io.LimitReader(rd, n)
		}
	}

	return req, nil
}

// readHeaderBlock consumes bytes through the blank line ending the header
// section, refusing to buffer more than max bytes.
func readHeaderBlock(rd *bufio.Reader, max int) ([]byte, errs.Error) {
	block := make([]byte, 0, 512)
	for {
		b, err := rd.ReadByte()
		if err != nil {
			if len(block) == 0 {
				return nil, ErrClientGone.ErrorParent(err)
			}
			return nil, ErrParseRequest.ErrorParent(err)
		}
		block = append(block, b)
		if len(block) > max {
			return nil, ErrHeaderTooBig.Error(fmt.Errorf("header block exceeds %d bytes", max))
		}
		if bytes.HasSuffix(block, []byte("\r\n\r\n")) || bytes.HasSuffix(block, []byte("\n\n")) {
			return block, nil
		}
	}
}

// resolveURL recognizes the absolute-URI proxy form, the authority form
// (CONNECT), and the origin form completed by Host.
func (r *Request) resolveURL() errs.Error {
	if r.Method == "CONNECT" {
		// authority form: host:port
		r.Host = r.RawURL
		r.URL = &url.URL{Host: r.RawURL}
		return nil
	}

	if strings.Contains(r.RawURL, "://") {
		u, e := url.Parse(r.RawURL)
		if e != nil {
			return ErrParseRequest.ErrorParent(e)
		}
		r.URL = u
		r.Host = u.Host
		return nil
	}

	// origin form: /path, host from the Host header
	u, e := url.Parse(r.RawURL)
	if e != nil {
		return ErrParseRequest.ErrorParent(e)
	}
	r.Host = r.Header.Get("Host")
	u.Scheme = "http"
	u.Host = r.Host
	r.URL = u
	return nil
}

// CanonicalURL is the store-key form of the request target.
func (r *Request) CanonicalURL() string {
	if r.URL == nil {
		return r.RawURL
	}
	return r.URL.String()
}

// OriginAddr is the host:port the server-side fetch dials for a direct
// forwarding decision.
func (r *Request) OriginAddr() string {
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	if !strings.Contains(host, ":") {
		if r.URL != nil && r.URL.Scheme == "https" {
			return host + ":443"
		}
		return host + ":80"
	}
	return host
}

// WantsKeepAlive applies the HTTP/1.0 and 1.1 persistence defaults.
func (r *Request) WantsKeepAlive() bool {
	c := strings.ToLower(r.Header.Get("Connection"))
	if r.Major == 1 && r.Minor == 0 {
		return strings.Contains(c, "keep-alive")
	}
	return !strings.Contains(c, "close")
}
