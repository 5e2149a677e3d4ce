package httpx

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/squidcore/proxy/internal/logging"
	"github.com/squidcore/proxy/internal/rfc1123"
	"github.com/squidcore/proxy/internal/store"
)

// Server drives the per-request lifecycle for every connection a listening
// port hands it: parse, store lookup, fetch or serve, stream, retire.
type Server struct {
	Store   *store.Store
	Chooser ForwardChooser
	Log     logging.FuncLog

	// Dial is the connect primitive, swappable for tests; DNS resolution
	// happens inside it (the resolver is an external collaborator).
	Dial func(network, addr string, timeout time.Duration) (net.Conn, error)

	ErrorPage ErrorPageRenderer

	MaxHeaderSize int

	// MaxInMemoryObject is the per-protocol cap above which a fetch
	// switches its entry to delete-behind streaming.
	MaxInMemoryObject int64

	// IdleTimeout bounds waiting for the next request on a kept-alive
	// connection.
	IdleTimeout time.Duration

	ConnectTimeout time.Duration

	RefreshPattern store.RefreshPattern

	// StopList rejects caching for URLs containing any member.
	StopList []string

	// AllowViolations relaxes client no-cache handling.
	AllowViolations bool

	// ViaToken names this proxy in Via headers.
	ViaToken string
}

// NewServer returns a Server with the customary defaults.
func NewServer(st *store.Store, chooser ForwardChooser, log logging.FuncLog) *Server {
	if chooser == nil {
		chooser = DirectChooser
	}
	return &Server{
		Store:             st,
		Chooser:           chooser,
		Log:               log,
		Dial:              net.DialTimeout,
		ErrorPage:         DefaultErrorPage,
		MaxHeaderSize:     DefaultMaxRequestHeaderSize,
		MaxInMemoryObject: 4 * 1024 * 1024,
		IdleTimeout:       2 * time.Minute,
		ConnectTimeout:    30 * time.Second,
		ViaToken:          "squidcore",
	}
}

func (s *Server) logger() logging.Logger {
	if s.Log == nil {
		return nil
	}
	return s.Log()
}

// ServeConn owns one accepted client connection: it loops parsing requests
// and serving responses until keepalive ends or a session-fatal error
// closes the connection.
func (s *Server) ServeConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	rd := bufio.NewReader(conn)

	for {
		if s.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}
		req, err := ParseRequest(rd, s.MaxHeaderSize)
		if err != nil {
			switch {
			case err.IsCode(ErrClientGone):
				// idle close between requests
			case err.IsCode(ErrHeaderTooBig):
				s.writeErrorResponse(conn, nil, http.StatusRequestHeaderFieldsTooLarge, "request header too large")
			case err.IsCode(ErrMethodNotImplemented):
				s.writeErrorResponse(conn, nil, http.StatusNotImplemented, "method not implemented")
			default:
				s.writeErrorResponse(conn, nil, http.StatusBadRequest, "malformed request")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Time{})

		t := newTxn(req)
		keep := s.handleTxn(conn, t)
		if !keep || !req.WantsKeepAlive() {
			return
		}
	}
}

// handleTxn runs steps 3-6 of the lifecycle for one transaction and
// reports whether the connection may be reused.
func (s *Server) handleTxn(conn net.Conn, t *txn) bool {
	req := t.req

	if req.Method == "CONNECT" {
		return s.tunnel(conn, req)
	}

	// drain the request body off the connection before the fetch runs
	// concurrently with the next parse
	if req.Body != nil {
		buf, rerr := io.ReadAll(req.Body)
		if rerr != nil {
			s.writeErrorResponse(conn, t, http.StatusBadRequest, "request body read failed")
			return false
		}
		req.Body = strings.NewReader(string(buf))
	}

	decision := s.Chooser(req)
	if decision.Route == RouteDeny {
		s.writeErrorResponse(conn, t, http.StatusForbidden, "access denied by policy")
		return true
	}

	key := store.MakeKey(req.Method, req.CanonicalURL(), nil)

	cacheable := s.requestCacheable(req)
	if cacheable {
		if entry, ok := s.Store.Lookup(key); ok && s.freshHit(entry) {
			t.hit = true
			return s.serveEntry(conn, t, entry)
		}
	}

	flags := store.Flags(0)
	if cacheable {
		flags |= store.Cachable
	} else {
		flags |= store.ReleaseRequest
	}
	entry := s.Store.Create(key, flags)

	// subscribe before the fetch runs so a delete-behind switch never
	// observes an entry with no readers while this client is alive
	rd, serr := entry.Subscribe()
	if serr != nil {
		s.writeErrorResponse(conn, t, http.StatusServiceUnavailable, "cache entry released")
		return true
	}
	go s.fetch(req, entry, decision)
	return s.drainEntry(conn, t, entry, rd)
}

// freshHit applies the attach rule: an incomplete or complete entry that is
// not marked for release and has not lapsed may serve new readers.
func (s *Server) freshHit(entry *store.Entry) bool {
	if entry.State() == store.Released {
		return false
	}
	if entry.Flags().Has(store.ReleaseRequest) {
		return false
	}
	if entry.State() == store.Complete && !entry.Expires.IsZero() && time.Now().After(entry.Expires) {
		s.Store.Release(entry.Key)
		return false
	}
	return true
}

// serveEntry attaches the transaction as a reader of entry and drains it to
// the client socket; it is the client write-back of lifecycle step 5.
func (s *Server) serveEntry(conn net.Conn, t *txn, entry *store.Entry) bool {
	rd, serr := entry.Subscribe()
	if serr != nil {
		s.writeErrorResponse(conn, t, http.StatusServiceUnavailable, "cache entry released")
		return true
	}
	return s.drainEntry(conn, t, entry, rd)
}

// drainEntry streams the entry to the client through an already-attached
// reader token.
func (s *Server) drainEntry(conn net.Conn, t *txn, entry *store.Entry, rd *store.Reader) bool {
	defer entry.Unsubscribe(rd)

	// wait for the fetch to publish the reply headers
	for {
		status, _ := entry.Reply()
		if status != 0 || entry.State() != store.Incomplete {
			break
		}
		<-rd.Wait()
	}

	status, headers := entry.Reply()
	if status == 0 {
		// aborted before any reply was recorded
		s.writeErrorResponse(conn, t, http.StatusBadGateway, "origin failure")
		return true
	}

	if err := s.writeResponseHeader(conn, t, status, headers, entry); err != nil {
		return false
	}
	if t.req.Method == "HEAD" {
		return true
	}

	for {
		chunk, state := entry.ReadFrom(rd)
		if len(chunk) > 0 {
			n, werr := conn.Write(chunk)
			t.out.size += int64(n)
			if werr != nil {
				s.clientAborted(entry)
				return false
			}
			entry.Ack(rd, int64(n))
			continue
		}
		if state != store.Incomplete {
			return true
		}
		<-rd.Wait()
	}
}

// clientAborted is the close-handler path for a client that went away while
// the server read is active: when delete-behind cannot apply, the fetch is
// told to abort via ClientAbortRequest.
func (s *Server) clientAborted(entry *store.Entry) {
	entry.SetFlag(store.ClientAbortRequest)
	if l := s.logger(); l != nil {
		l.Entry(logging.DebugLevel, "client aborted while reading entry %s", entry.Key)
	}
}

// writeResponseHeader emits the status line and headers, adding Via and,
// for cache hits, a non-negative Age.
func (s *Server) writeResponseHeader(conn net.Conn, t *txn, status int, headers map[string][]string, entry *store.Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))

	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if isHopByHop(k) {
			continue
		}
		for _, v := range headers[k] {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}

	fmt.Fprintf(&b, "Via: 1.1 %s\r\n", s.ViaToken)
	if t != nil && t.hit {
		age := int64(0)
		if date, ok := rfc1123.Parse(firstVal(headers, "Date")); ok {
			if d := time.Since(date); d > 0 {
				age = int64(d.Seconds())
			}
		}
		fmt.Fprintf(&b, "Age: %d\r\n", age)
	}
	if entry.State() == store.Incomplete && firstVal(headers, "Content-Length") == "" {
		// length unknown until the fetch completes; no persistence
		b.WriteString("Connection: close\r\n")
	}
	b.WriteString("\r\n")

	n, err := io.WriteString(conn, b.String())
	if t != nil {
		t.out.headersSz = n
	}
	return err
}

func firstVal(h map[string][]string, key string) string {
	if v := h[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

var hopByHop = map[string]bool{
	"Connection": true, "Proxy-Connection": true, "Keep-Alive": true,
	"Proxy-Authenticate": true, "Proxy-Authorization": true,
	"Te": true, "Trailer": true, "Transfer-Encoding": true, "Upgrade": true,
}

func isHopByHop(name string) bool {
	return hopByHop[http.CanonicalHeaderKey(name)]
}

// writeErrorResponse emits a generated error page directly on the client
// socket for failures that never produced a StoreEntry.
func (s *Server) writeErrorResponse(conn net.Conn, t *txn, status int, reason string) {
	render := s.ErrorPage
	if render == nil {
		render = DefaultErrorPage
	}
	body := render(status, reason, nil)

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	fmt.Fprintf(&b, "Date: %s\r\n", rfc1123.Format(time.Now()))
	fmt.Fprintf(&b, "Content-Type: text/html\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(&b, "Via: 1.1 %s\r\n", s.ViaToken)
	b.WriteString("\r\n")

	n, _ := io.WriteString(conn, b.String())
	if t != nil {
		t.out.headersSz = n
	}
	m, _ := conn.Write(body)
	if t != nil {
		t.out.size = int64(m)
	}
}

// tunnel implements CONNECT: a blind two-way byte relay after the
// established reply.
func (s *Server) tunnel(conn net.Conn, req *Request) bool {
	origin, err := s.Dial("tcp", req.OriginAddr(), s.ConnectTimeout)
	if err != nil {
		s.writeErrorResponse(conn, nil, http.StatusBadGateway, "cannot reach origin")
		return true
	}
	defer origin.Close()

	if _, err := io.WriteString(conn, "HTTP/1.1 200 Connection established\r\n\r\n"); err != nil {
		return false
	}

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(origin, conn)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(conn, origin)
		done <- struct{}{}
	}()
	<-done
	return false
}
