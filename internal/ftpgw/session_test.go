package ftpgw

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	libftp "github.com/jlaffaye/ftp"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/ftppeer"
)

// fakePeer satisfies ftppeer.Peer without touching the network.
type fakePeer struct {
	failLogin bool
	listing   []*libftp.Entry
	fileBody  string
	stored    map[string]string
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		listing: []*libftp.Entry{
			{Name: "hello.txt", Type: libftp.EntryTypeFile, Size: 5, Time: time.Unix(784111777, 0)},
			{Name: "pub", Type: libftp.EntryTypeFolder, Time: time.Unix(784111777, 0)},
		},
		fileBody: "hello",
		stored:   map[string]string{},
	}
}

func (f *fakePeer) Connect() errs.Error {
	if f.failLogin {
		return ftppeer.ErrConnect.Error(nil)
	}
	return nil
}
func (f *fakePeer) Check() errs.Error {
	return f.Connect()
}
func (f *fakePeer) Close() {}
func (f *fakePeer) NameList(string) ([]string, errs.Error) {
	names := make([]string, 0, len(f.listing))
	for _, e := range f.listing {
		names = append(names, e.Name)
	}
	return names, nil
}
func (f *fakePeer) List(string) ([]*libftp.Entry, errs.Error) { return f.listing, nil }
func (f *fakePeer) ChangeDir(string) errs.Error               { return nil }
func (f *fakePeer) ChangeDirToParent() errs.Error             { return nil }
func (f *fakePeer) CurrentDir() (string, errs.Error)          { return "/", nil }
func (f *fakePeer) FileSize(string) (int64, errs.Error)       { return int64(len(f.fileBody)), nil }
func (f *fakePeer) GetTime(string) (time.Time, errs.Error)    { return time.Unix(784111777, 0), nil }
func (f *fakePeer) SetTime(string, time.Time) errs.Error      { return nil }
func (f *fakePeer) Retr(string) (*libftp.Response, errs.Error) {
	// libftp.Response cannot be fabricated; tests exercise RETR through
	// the listing commands, which share the same download path.
	return nil, ftppeer.ErrCommand.Error(nil)
}
func (f *fakePeer) RetrFrom(string, uint64) (*libftp.Response, errs.Error) {
	return nil, ftppeer.ErrCommand.Error(nil)
}
func (f *fakePeer) Stor(path string, r io.Reader) errs.Error {
	b, _ := io.ReadAll(r)
	f.stored[path] = string(b)
	return nil
}
func (f *fakePeer) Append(path string, r io.Reader) errs.Error { return f.Stor(path, r) }
func (f *fakePeer) Rename(string, string) errs.Error           { return nil }
func (f *fakePeer) Delete(string) errs.Error                   { return nil }
func (f *fakePeer) MakeDir(string) errs.Error                  { return nil }
func (f *fakePeer) RemoveDir(string) errs.Error                { return nil }
func (f *fakePeer) Features() []string                         { return []string{"MDTM", "SIZE"} }

// startSession serves one session over a real loopback TCP pair so address
// checks see genuine TCPAddrs.
func startSession(t *testing.T, peer *fakePeer) (client net.Conn, done chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done = make(chan struct{})
	go func() {
		defer close(done)
		srv, aerr := ln.Accept()
		_ = ln.Close()
		if aerr != nil {
			return
		}
		sess := NewSession(srv, "", false, func(*ftppeer.Config) ftppeer.Peer { return peer }, nil)
		sess.Serve()
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		<-done
	})
	return client, done
}

func expectReply(t *testing.T, rd *bufio.Reader, code string) string {
	t.Helper()
	line, err := rd.ReadString('\n')
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if !strings.HasPrefix(line, code) {
		t.Fatalf("want reply %s, got %q", code, line)
	}
	return strings.TrimRight(line, "\r\n")
}

func TestGreetingLoginSequence(t *testing.T) {
	client, _ := startSession(t, newFakePeer())
	rd := bufio.NewReader(client)

	expectReply(t, rd, "220")
	fmt.Fprintf(client, "USER anonymous@origin.example:21\r\n")
	expectReply(t, rd, "331")
	fmt.Fprintf(client, "PASS a@b\r\n")
	expectReply(t, rd, "230")
}

func TestCommandVerbNormalization(t *testing.T) {
	client, _ := startSession(t, newFakePeer())
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	for _, form := range []string{"user a@h:21", "USER a@h:21", "User\ta@h:21"} {
		fmt.Fprintf(client, "%s\r\n", form)
		expectReply(t, rd, "331")
	}
}

func TestFirstCommandMustBeUser(t *testing.T) {
	client, _ := startSession(t, newFakePeer())
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	fmt.Fprintf(client, "PWD\r\n")
	expectReply(t, rd, "503")
}

func TestAuthIsBlacklisted(t *testing.T) {
	client, _ := startSession(t, newFakePeer())
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	fmt.Fprintf(client, "AUTH TLS\r\n")
	expectReply(t, rd, "502")
}

func TestUnknownVerb502(t *testing.T) {
	client, _ := startSession(t, newFakePeer())
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	fmt.Fprintf(client, "USER a@h:21\r\n")
	expectReply(t, rd, "331")
	fmt.Fprintf(client, "XYZZY\r\n")
	expectReply(t, rd, "502")
}

func TestPortFromWrongIPIsProhibited(t *testing.T) {
	client, _ := startSession(t, newFakePeer())
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	fmt.Fprintf(client, "USER a@h:21\r\n")
	expectReply(t, rd, "331")

	// 10.0.0.2 is not the control connection's peer
	fmt.Fprintf(client, "PORT 10,0,0,2,1,2\r\n")
	expectReply(t, rd, "501 Prohibited parameter value")

	// the control connection must remain usable
	fmt.Fprintf(client, "NOOP\r\n")
	expectReply(t, rd, "200")
}

func TestEpsvAllDisablesPort(t *testing.T) {
	client, _ := startSession(t, newFakePeer())
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	fmt.Fprintf(client, "USER a@h:21\r\n")
	expectReply(t, rd, "331")
	fmt.Fprintf(client, "EPSV ALL\r\n")
	expectReply(t, rd, "200")
	fmt.Fprintf(client, "PORT 127,0,0,1,1,2\r\n")
	expectReply(t, rd, "500")
	fmt.Fprintf(client, "EPRT |1|127.0.0.1|2048|\r\n")
	expectReply(t, rd, "500")
}

func TestEpsvListDirectoryFlow(t *testing.T) {
	client, _ := startSession(t, newFakePeer())
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	fmt.Fprintf(client, "USER anonymous@origin.example:21\r\n")
	expectReply(t, rd, "331")
	fmt.Fprintf(client, "PASS a@b\r\n")
	expectReply(t, rd, "230")

	fmt.Fprintf(client, "EPSV\r\n")
	line := expectReply(t, rd, "229")
	var port int
	if _, err := fmt.Sscanf(line[strings.Index(line, "(|||"):], "(|||%d|)", &port); err != nil || port <= 0 {
		t.Fatalf("no port in EPSV reply %q", line)
	}

	data, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("dialing advertised data port: %v", err)
	}
	defer data.Close()

	fmt.Fprintf(client, "LIST\r\n")
	expectReply(t, rd, "150")

	body, err := io.ReadAll(data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "hello.txt") {
		t.Fatalf("listing missing entry: %q", body)
	}
	expectReply(t, rd, "226")
}

func TestUploadStorFlow(t *testing.T) {
	peer := newFakePeer()
	client, _ := startSession(t, peer)
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	fmt.Fprintf(client, "USER u@h:21\r\n")
	expectReply(t, rd, "331")
	fmt.Fprintf(client, "PASS p\r\n")
	expectReply(t, rd, "230")

	fmt.Fprintf(client, "EPSV\r\n")
	line := expectReply(t, rd, "229")
	var port int
	fmt.Sscanf(line[strings.Index(line, "(|||"):], "(|||%d|)", &port)

	data, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatal(err)
	}

	fmt.Fprintf(client, "STOR up.txt\r\n")
	expectReply(t, rd, "150")

	_, _ = data.Write([]byte("uploaded body"))
	_ = data.Close()

	expectReply(t, rd, "226")
	if peer.stored["up.txt"] != "uploaded body" {
		t.Fatalf("upstream saw %q", peer.stored["up.txt"])
	}
}

func TestOverlongCommandTearsDown(t *testing.T) {
	client, done := startSession(t, newFakePeer())
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	if _, err := client.Write([]byte(strings.Repeat("A", maxCommandLine+10))); err != nil {
		t.Fatal(err)
	}
	expectReply(t, rd, "421")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not tear down after overlong input")
	}
}

func TestLoginFailureIsRecoverable(t *testing.T) {
	peer := newFakePeer()
	peer.failLogin = true
	client, _ := startSession(t, peer)
	rd := bufio.NewReader(client)
	expectReply(t, rd, "220")

	fmt.Fprintf(client, "USER u@h:21\r\n")
	expectReply(t, rd, "331")
	fmt.Fprintf(client, "PASS bad\r\n")
	expectReply(t, rd, "530")

	peer.failLogin = false
	fmt.Fprintf(client, "PASS good\r\n")
	expectReply(t, rd, "230")
}
