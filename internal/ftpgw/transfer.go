package ftpgw

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	libftp "github.com/jlaffaye/ftp"

	"github.com/squidcore/proxy/internal/logging"
	"github.com/squidcore/proxy/internal/store"
)

// ftpDirTTL and ftpFileTTL are the configured directory-vs-file lifetimes
// applied when a relayed body completes.
const (
	ftpDirTTL  = 30 * time.Minute
	ftpFileTTL = 4 * time.Hour
)

func (s *Session) handleRetr(args string) {
	if args == "" {
		_ = s.writeReply(501, "Missing file name")
		return
	}
	s.download("RETR", args, false, func() (io.ReadCloser, bool) {
		resp, err := s.peer.Retr(args)
		if err != nil {
			return nil, false
		}
		return resp, true
	})
}

func (s *Session) handleList(args string) {
	s.download("LIST", args, true, func() (io.ReadCloser, bool) {
		entries, err := s.peer.List(args)
		if err != nil {
			return nil, false
		}
		return io.NopCloser(strings.NewReader(formatList(entries))), true
	})
}

func (s *Session) handleNlst(args string) {
	s.download("NLST", args, true, func() (io.ReadCloser, bool) {
		names, err := s.peer.NameList(args)
		if err != nil {
			return nil, false
		}
		var b strings.Builder
		for _, n := range names {
			b.WriteString(n)
			b.WriteString("\r\n")
		}
		return io.NopCloser(strings.NewReader(b.String())), true
	})
}

func (s *Session) handleMlsd(args string) {
	s.download("MLSD", args, true, func() (io.ReadCloser, bool) {
		entries, err := s.peer.List(args)
		if err != nil {
			return nil, false
		}
		return io.NopCloser(strings.NewReader(formatMlsd(entries))), true
	})
}

func (s *Session) handleStor(args string) {
	s.upload("STOR", args, s.peerStor)
}

func (s *Session) handleAppe(args string) {
	s.upload("APPE", args, s.peerAppend)
}

func (s *Session) peerStor(path string, r io.Reader) bool {
	return s.peer.Stor(path, r) == nil
}

func (s *Session) peerAppend(path string, r io.Reader) bool {
	return s.peer.Append(path, r) == nil
}

// download runs one data-transfer command: the data connection must be open
// (connect started in active mode, accept awaited in passive) before the
// command is forwarded upstream.
func (s *Session) download(verb, args string, isDir bool, open func() (io.ReadCloser, bool)) {
	if s.busy {
		_ = s.writeReply(503, "Transfer already in progress")
		return
	}
	s.busy = true
	defer func() { s.busy = false }()

	s.changeState(StateHandleDataRequest, "handleDataRequest")
	defer func() {
		s.closeDataConnection()
		if s.state == StateHandleDataRequest {
			s.changeState(StateConnected, verb+" done")
		}
	}()

	if !s.requirePeer() {
		return
	}
	conn, derr := s.ensureDataConn()
	if derr != nil {
		_ = s.writeReply(425, "Data connection is not established.")
		return
	}

	body, ok := open()
	if !ok {
		_ = s.writeReply(550, "Requested action not taken")
		return
	}
	defer func() { _ = body.Close() }()

	if err := s.writeReply(150, "Data connection opened"); err != nil {
		return
	}

	switch s.relayBody(conn, body, isDir) {
	case relayOK:
		// data connection closes before the completion reply
		s.closeDataConnection()
		_ = s.writeReply(226, "Transfer complete")
	case relayClientGone:
		// the reply data has nowhere to go; discard it with a log note
		if l := s.logger(); l != nil {
			l.Entry(logging.InfoLevel, "ftp session %s: client closed data connection mid-%s, discarding remainder", s.ID, verb)
		}
		_ = s.writeReply(426, "Data connection closed; transfer aborted")
	default:
		_ = s.writeReply(451, "Requested action aborted: local error in processing")
	}
}

// upload arms the data connection as the body source and forwards it
// upstream; the client signals end-of-body by closing the data connection.
func (s *Session) upload(verb, args string, put func(string, io.Reader) bool) {
	if args == "" {
		_ = s.writeReply(501, "Missing file name")
		return
	}
	if s.busy {
		_ = s.writeReply(503, "Transfer already in progress")
		return
	}
	s.busy = true
	defer func() { s.busy = false }()

	s.changeState(StateHandleUploadRequest, "handleDataRequest")
	defer func() {
		s.closeDataConnection()
		if s.state == StateHandleUploadRequest {
			s.changeState(StateConnected, verb+" done")
		}
	}()

	if !s.requirePeer() {
		return
	}
	conn, derr := s.ensureDataConn()
	if derr != nil {
		_ = s.writeReply(425, "Data connection is not established.")
		return
	}

	if err := s.writeReply(150, "Data connection opened"); err != nil {
		return
	}

	if !put(args, conn) {
		_ = s.writeReply(451, "Requested action aborted: local error in processing")
		return
	}
	_ = s.writeReply(226, "Transfer complete")
}

type relayResult int

const (
	relayOK relayResult = iota
	relayClientGone
	relayUpstreamError
)

// relayBody streams the upstream body to the client's data connection
// through a delete-behind StoreEntry, so memory held for a slow client is
// bounded by the per-protocol gap rather than the body size.
func (s *Session) relayBody(conn net.Conn, body io.Reader, isDir bool) relayResult {
	entry := store.NewEntry("ftp:"+s.uri, store.DeleteBehind)
	rd, serr := entry.Subscribe()
	if serr != nil {
		return relayUpstreamError
	}

	writerDone := make(chan relayResult, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, rerr := body.Read(buf)
			if n > 0 {
				deferred, aerr := entry.Append(buf[:n])
				if aerr != nil {
					// no readers remain; the fetch is abandoned
					entry.Abort(nil)
					writerDone <- relayClientGone
					return
				}
				if deferred {
					// reader lags past the gap: hold without draining
					// until it catches up or goes away
					for entry.Gap() > store.DeleteBehindGap && entry.ClientWaiting() {
						time.Sleep(5 * time.Millisecond)
					}
				}
			}
			if rerr == io.EOF {
				entry.Complete(store.FTPTTL(isDir, ftpDirTTL, ftpFileTTL))
				writerDone <- relayOK
				return
			}
			if rerr != nil {
				entry.Abort(nil)
				writerDone <- relayUpstreamError
				return
			}
		}
	}()

	clientGone := false
	for {
		chunk, state := entry.ReadFrom(rd)
		if len(chunk) > 0 {
			if _, werr := conn.Write(chunk); werr != nil {
				clientGone = true
				entry.Unsubscribe(rd)
				break
			}
			entry.Ack(rd, int64(len(chunk)))
			continue
		}
		if state != store.Incomplete {
			entry.Unsubscribe(rd)
			break
		}
		<-rd.Wait()
	}

	res := <-writerDone
	if clientGone {
		return relayClientGone
	}
	if res == relayClientGone {
		// the writer observed the unsubscribe before we flagged it
		return relayClientGone
	}
	return res
}

// formatList renders a LIST response in the customary ls -l shape.
func formatList(entries []*libftp.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		mode := "-rw-r--r--"
		if e.Type == libftp.EntryTypeFolder {
			mode = "drwxr-xr-x"
		} else if e.Type == libftp.EntryTypeLink {
			mode = "lrwxrwxrwx"
		}
		fmt.Fprintf(&b, "%s 1 ftp ftp %12d %s %s\r\n",
			mode, e.Size, e.Time.UTC().Format("Jan _2 15:04"), e.Name)
	}
	return b.String()
}

// formatMlsd renders an RFC 3659 machine listing.
func formatMlsd(entries []*libftp.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.Type == libftp.EntryTypeFolder {
			kind = "dir"
		}
		fmt.Fprintf(&b, "type=%s;size=%d;modify=%s; %s\r\n",
			kind, e.Size, e.Time.UTC().Format(timeValFormat), e.Name)
	}
	return b.String()
}
