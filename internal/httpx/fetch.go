package httpx

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/squidcore/proxy/internal/logging"
	"github.com/squidcore/proxy/internal/store"
)

// fetch is the server-side half of lifecycle step 4: connect per the
// forwarding decision, write the forwarded request, and append the
// response into the entry under the backpressure rules of §4.C. Errors
// become entry aborts with a negative TTL; they are never delivered to
// anyone but the current readers.
func (s *Server) fetch(req *Request, entry *store.Entry, decision ForwardDecision) {
	conn, err := s.connectFor(req, decision)
	if err != nil {
		s.abortEntry(entry, http.StatusBadGateway, "cannot reach origin", err)
		return
	}
	defer conn.Close()

	if err := s.writeForwardedRequest(conn, req); err != nil {
		s.abortEntry(entry, http.StatusBadGateway, "error writing to origin", err)
		return
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: req.Method})
	if err != nil {
		s.abortEntry(entry, http.StatusBadGateway, "invalid origin response", err)
		return
	}
	defer resp.Body.Close()

	if !responseCacheable(resp.StatusCode, resp.Header) {
		entry.ClearFlag(store.Cachable)
		entry.SetFlag(store.ReleaseRequest)
	}
	if resp.ContentLength > s.MaxInMemoryObject {
		s.startDeleteBehind(entry)
	}

	entry.SetReply(resp.StatusCode, resp.Header)

	buf := make([]byte, 32*1024)
	var copied int64
	for {
		if entry.Flags().Has(store.ClientAbortRequest) && !entry.Flags().Has(store.Cachable) {
			// nobody will ever want these bytes
			entry.Abort(s.renderError(http.StatusBadGateway, "client aborted"))
			entry.Expires = time.Now().Add(store.NegativeTTL)
			return
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			copied += int64(n)
			if copied > s.MaxInMemoryObject && !entry.Flags().Has(store.DeleteBehind) {
				s.startDeleteBehind(entry)
			}
			deferred, aerr := entry.Append(buf[:n])
			if aerr != nil {
				// delete-behind with no readers left: abandon the fetch
				entry.Abort(s.renderError(http.StatusBadGateway, "fetch abandoned"))
				entry.Expires = time.Now().Add(store.NegativeTTL)
				return
			}
			if deferred {
				// hold without draining so TCP flow control reaches the
				// origin; resume when the reader catches up or leaves
				for entry.Gap() > store.DeleteBehindGap && entry.ClientWaiting() {
					time.Sleep(5 * time.Millisecond)
				}
			}
		}
		if rerr == io.EOF {
			entry.Complete(store.HTTPTTL(s.RefreshPattern))
			return
		}
		if rerr != nil {
			s.abortEntry(entry, http.StatusBadGateway, "origin read failed", rerr)
			return
		}
	}
}

// connectFor dials per the forwarding decision, walking the parent
// failover list in order.
func (s *Server) connectFor(req *Request, decision ForwardDecision) (net.Conn, error) {
	addrs := decision.Addrs
	if decision.Route == RouteDirect || len(addrs) == 0 {
		addrs = []string{req.OriginAddr()}
	}
	var last error
	for _, addr := range addrs {
		conn, err := s.Dial("tcp", addr, s.ConnectTimeout)
		if err == nil {
			return conn, nil
		}
		last = err
		if l := s.logger(); l != nil {
			l.Entry(logging.InfoLevel, "connect to %s failed: %v", addr, err)
		}
	}
	if last == nil {
		last = fmt.Errorf("no forwarding address")
	}
	return nil, last
}

// writeForwardedRequest emits the request toward the origin with
// hop-by-hop headers stripped and this proxy appended to Via.
func (s *Server) writeForwardedRequest(conn net.Conn, req *Request) error {
	var b strings.Builder

	target := req.URL.RequestURI()
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", req.Method, target)
	fmt.Fprintf(&b, "Host: %s\r\n", req.Host)

	for k, vs := range req.Header {
		ck := http.CanonicalHeaderKey(k)
		if isHopByHop(ck) || ck == "Host" {
			continue
		}
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", ck, v)
		}
	}
	via := req.Header.Get("Via")
	if via != "" {
		via += ", "
	}
	fmt.Fprintf(&b, "Via: %s1.1 %s\r\n", via, s.ViaToken)
	b.WriteString("Connection: close\r\n")
	b.WriteString("\r\n")

	if _, err := io.WriteString(conn, b.String()); err != nil {
		return err
	}
	if req.Body != nil {
		if _, err := io.Copy(conn, req.Body); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) startDeleteBehind(entry *store.Entry) {
	entry.StartDeleteBehind()
	s.Store.RecordDeleteBehind()
	if l := s.logger(); l != nil {
		l.Entry(logging.DebugLevel, "entry %s switched to delete-behind streaming", entry.Key)
	}
}

func (s *Server) renderError(status int, reason string) []byte {
	render := s.ErrorPage
	if render == nil {
		render = DefaultErrorPage
	}
	return render(status, reason, nil)
}

// abortEntry is the single point turning a transactional failure into a
// negative-TTL error entry served to current readers only.
func (s *Server) abortEntry(entry *store.Entry, status int, reason string, cause error) {
	if l := s.logger(); l != nil {
		l.Entry(logging.InfoLevel, "fetch for %s failed: %s: %v", entry.Key, reason, cause)
	}
	body := s.renderError(status, reason)
	entry.SetReply(status, map[string][]string{
		"Content-Type":   {"text/html"},
		"Content-Length": {fmt.Sprintf("%d", len(body))},
	})
	entry.Abort(body)
	entry.Expires = time.Now().Add(store.NegativeTTL)
}
