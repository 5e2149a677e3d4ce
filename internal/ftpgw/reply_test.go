package ftpgw

import (
	"strings"
	"testing"
)

func TestRelayReplyHeaderRoundTrip(t *testing.T) {
	in := &RelayReply{
		Status:    211,
		Reason:    "End",
		Pre:       []string{`"211-Features:"`, `" EPSV"`},
		Command:   "FEAT",
		Arguments: "",
	}
	out, ok := ReplyFromHeader(in.Header())
	if !ok {
		t.Fatal("round trip rejected")
	}
	if out.Status != in.Status || out.Reason != in.Reason || out.Command != in.Command {
		t.Fatalf("round trip mangled reply: %+v", out)
	}
	if len(out.Pre) != 2 || out.Pre[0] != in.Pre[0] {
		t.Fatalf("preamble lost: %v", out.Pre)
	}
}

func TestReplyFromHeaderRequiresStatus(t *testing.T) {
	if _, ok := ReplyFromHeader(map[string][]string{HdrFTPReason: {"x"}}); ok {
		t.Fatal("reply without FTP-Status accepted")
	}
	if _, ok := ReplyFromHeader(map[string][]string{HdrFTPStatus: {"abc"}}); ok {
		t.Fatal("non-numeric FTP-Status accepted")
	}
}

func TestBuildFeatReplyAlwaysAdvertisesExtendedVerbs(t *testing.T) {
	r := BuildFeatReply([]string{"MDTM", "SIZE"})
	lines := r.Render()

	if lines[0] != "211-Features:" {
		t.Fatalf("first line %q", lines[0])
	}
	last := lines[len(lines)-1]
	if last != "211 End" {
		t.Fatalf("last line %q", last)
	}

	joined := strings.Join(lines, "\n")
	for _, want := range []string{" EPRT", " EPSV", " MDTM", " SIZE"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("feature %q missing from %q", want, joined)
		}
	}
}

func TestBuildFeatReplyDeduplicatesUpstream(t *testing.T) {
	r := BuildFeatReply([]string{"EPSV", "epsv", "MDTM"})
	count := 0
	for _, l := range r.Render() {
		if strings.TrimSpace(l) == "EPSV" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("EPSV advertised %d times", count)
	}
}

func TestParsePortArgs(t *testing.T) {
	addr, err := parsePortArgs("127,0,0,1,4,210")
	if err != nil {
		t.Fatal(err)
	}
	if addr.Port != 4*256+210 || addr.IP.String() != "127.0.0.1" {
		t.Fatalf("parsed %v", addr)
	}

	for _, bad := range []string{"", "1,2,3", "256,0,0,1,1,2", "127,0,0,1,0,0", "a,b,c,d,e,f"} {
		if _, err := parsePortArgs(bad); err == nil {
			t.Fatalf("accepted %q", bad)
		}
	}
}

func TestParseEprtArgs(t *testing.T) {
	addr, err := parseEprtArgs("|1|10.0.0.1|2048|")
	if err != nil {
		t.Fatal(err)
	}
	if addr.Port != 2048 || addr.IP.String() != "10.0.0.1" {
		t.Fatalf("parsed %v", addr)
	}

	if addr, err = parseEprtArgs("|2|::1|3000|"); err != nil || addr.Port != 3000 {
		t.Fatalf("IPv6 form rejected: %v %v", addr, err)
	}

	for _, bad := range []string{"", "|3|10.0.0.1|2048|", "|1|not-an-ip|2048|", "|1|10.0.0.1|0|"} {
		if _, err := parseEprtArgs(bad); err == nil {
			t.Fatalf("accepted %q", bad)
		}
	}
}

func TestCloseDataConnectionIsIdempotent(t *testing.T) {
	s := &Session{}
	s.closeDataConnection()
	s.closeDataConnection()
}
