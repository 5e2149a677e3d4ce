package ftpgw

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Synthetic header names used to pipe FTP reply structure through the
// HTTP-shaped relay between the gateway halves.
const (
	HdrFTPStatus    = "FTP-Status"
	HdrFTPReason    = "FTP-Reason"
	HdrFTPPre       = "FTP-Pre"
	HdrFTPCommand   = "FTP-Command"
	HdrFTPArguments = "FTP-Arguments"
)

// RelayReply is the internal, HTTP-header-shaped form of an FTP reply. The
// upstream half encodes what the origin said; the server half reconstructs
// a correct (possibly multi-line) FTP reply from it.
type RelayReply struct {
	Status    int
	Reason    string
	Pre       []string // preamble lines, stored quoted per the relay format
	Command   string
	Arguments string
}

// Header renders the reply as synthetic headers, one FTP-Pre entry per
// preamble line.
func (r *RelayReply) Header() map[string][]string {
	h := map[string][]string{
		HdrFTPStatus: {strconv.Itoa(r.Status)},
		HdrFTPReason: {r.Reason},
	}
	if len(r.Pre) > 0 {
		h[HdrFTPPre] = append([]string(nil), r.Pre...)
	}
	if r.Command != "" {
		h[HdrFTPCommand] = []string{r.Command}
	}
	if r.Arguments != "" {
		h[HdrFTPArguments] = []string{r.Arguments}
	}
	return h
}

// ReplyFromHeader rebuilds a RelayReply from its synthetic-header form.
func ReplyFromHeader(h map[string][]string) (*RelayReply, bool) {
	status := first(h, HdrFTPStatus)
	if status == "" {
		return nil, false
	}
	code, err := strconv.Atoi(status)
	if err != nil {
		return nil, false
	}
	return &RelayReply{
		Status:    code,
		Reason:    first(h, HdrFTPReason),
		Pre:       append([]string(nil), h[HdrFTPPre]...),
		Command:   first(h, HdrFTPCommand),
		Arguments: first(h, HdrFTPArguments),
	}, true
}

func first(h map[string][]string, key string) string {
	if v := h[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Render yields the wire lines of the reply: each unquoted preamble line,
// then the final "NNN Reason" line. A preamble entry that fails to unquote
// is passed through as-is rather than dropped.
func (r *RelayReply) Render() []string {
	lines := make([]string, 0, len(r.Pre)+1)
	for _, p := range r.Pre {
		if uq, err := strconv.Unquote(p); err == nil {
			lines = append(lines, uq)
		} else {
			lines = append(lines, p)
		}
	}
	lines = append(lines, fmt.Sprintf("%d %s", r.Status, r.Reason))
	return lines
}

// BuildFeatReply splices the gateway's own capabilities with the upstream's
// advertised features. EPRT and EPSV are always advertised: the gateway
// implements both locally whatever the origin supports.
func BuildFeatReply(upstream []string) *RelayReply {
	const indent = " "

	seen := map[string]bool{}
	feats := make([]string, 0, len(upstream)+2)
	for _, f := range upstream {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := strings.ToUpper(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		feats = append(feats, f)
	}
	for _, own := range []string{"EPRT", "EPSV"} {
		if !seen[own] {
			feats = append(feats, own)
			seen[own] = true
		}
	}
	sort.Strings(feats)

	r := &RelayReply{Status: 211, Reason: "End", Command: "FEAT"}
	r.Pre = append(r.Pre, strconv.Quote("211-Features:"))
	for _, f := range feats {
		r.Pre = append(r.Pre, strconv.Quote(indent+f))
	}
	return r
}

// writeReply writes one single-line reply.
func (s *Session) writeReply(code int, msg string) error {
	return s.writeLines([]string{fmt.Sprintf("%d %s", code, msg)})
}

// writeRelayReply writes the full, possibly multi-line reconstruction.
func (s *Session) writeRelayReply(r *RelayReply) error {
	return s.writeLines(r.Render())
}

func (s *Session) writeLines(lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	if _, err := s.ctrl.Write([]byte(b.String())); err != nil {
		s.changeState(StateError, "control write failed")
		return err
	}
	return nil
}
