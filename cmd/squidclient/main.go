// Command squidclient is the test driver for a running proxy: it sends one
// crafted request (or a synthetic ping load) and prints the raw response.
// Exit status is 0 on success and 1 on a connect or resolve error.
package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/squidcore/proxy/internal/rfc1123"
	"github.com/squidcore/proxy/internal/tlsopts"
)

type options struct {
	host    string
	port    int
	method  string
	headers []string
	ims     string
	version string
	noCache bool
	putFile string

	useTLS    bool
	cert      string
	trustedCA string
	tlsParams string
	anonTLS   bool

	ping     bool
	count    int
	interval int
}

func main() {
	opt := &options{}

	root := &cobra.Command{
		Use:   "squidclient [flags] URL",
		Short: "drive test requests through a proxy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return clientMain(opt, args[0])
		},
	}

	fl := root.Flags()
	// claim the help flag without a shorthand so -h stays the host flag,
	// matching the historical CLI surface
	fl.Bool("help", false, "help for squidclient")
	fl.StringVarP(&opt.host, "host", "h", "localhost", "proxy host")
	fl.IntVarP(&opt.port, "port", "p", 3128, "proxy port")
	fl.StringVarP(&opt.method, "method", "m", "GET", "request method")
	fl.StringArrayVarP(&opt.headers, "header", "H", nil, "extra request header (repeatable)")
	fl.StringVarP(&opt.ims, "ims", "i", "", "If-Modified-Since time (RFC 1123 or unix seconds)")
	fl.StringVarP(&opt.version, "http-version", "V", "1.1", "HTTP version: 1.0, 1.1 or - for none")
	fl.BoolVarP(&opt.noCache, "no-cache", "r", false, "force a reload (Cache-Control: no-cache)")
	fl.StringVarP(&opt.putFile, "put", "P", "", "PUT the named file as the request body")

	fl.BoolVar(&opt.useTLS, "https", false, "wrap the proxy connection in TLS")
	fl.StringVar(&opt.cert, "cert", "", "client certificate (PEM, key defaults to same file)")
	fl.StringVar(&opt.trustedCA, "trusted-ca", "", "CA bundle to verify the proxy against")
	fl.StringVar(&opt.tlsParams, "params", "", "TLS options token list")
	fl.BoolVar(&opt.anonTLS, "anonymous-tls", false, "skip peer verification")

	fl.BoolVar(&opt.ping, "ping", false, "loop sending the request")
	fl.IntVarP(&opt.count, "count", "g", 0, "ping iterations (0 = forever)")
	fl.IntVarP(&opt.interval, "interval", "I", 1000, "ping interval in milliseconds")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func clientMain(opt *options, url string) error {
	if !opt.ping {
		return doRequest(opt, url, os.Stdout)
	}

	i := 0
	var min, max, sum time.Duration
	for opt.count == 0 || i < opt.count {
		start := time.Now()
		err := doRequest(opt, url, io.Discard)
		rtt := time.Since(start)
		if err != nil {
			return err
		}
		if min == 0 || rtt < min {
			min = rtt
		}
		if rtt > max {
			max = rtt
		}
		sum += rtt
		i++
		fmt.Printf("ping %d: %v\n", i, rtt)
		time.Sleep(time.Duration(opt.interval) * time.Millisecond)
	}
	if i > 0 {
		fmt.Printf("%d requests, rtt min/avg/max = %v/%v/%v\n", i, min, sum/time.Duration(i), max)
	}
	return nil
}

func doRequest(opt *options, url string, out io.Writer) error {
	conn, err := dial(opt)
	if err != nil {
		return err
	}
	defer conn.Close()

	var body []byte
	method := opt.method
	if opt.putFile != "" {
		body, err = os.ReadFile(opt.putFile)
		if err != nil {
			return err
		}
		if method == "GET" {
			method = "PUT"
		}
	}

	var b strings.Builder
	switch opt.version {
	case "-":
		fmt.Fprintf(&b, "%s %s\r\n", method, url)
	default:
		fmt.Fprintf(&b, "%s %s HTTP/%s\r\n", method, url, opt.version)
		fmt.Fprintf(&b, "Host: %s\r\n", hostFrom(url, opt.host))
	}
	if opt.noCache {
		b.WriteString("Cache-Control: no-cache\r\nPragma: no-cache\r\n")
	}
	if opt.ims != "" {
		fmt.Fprintf(&b, "If-Modified-Since: %s\r\n", imsValue(opt.ims))
	}
	for _, h := range opt.headers {
		fmt.Fprintf(&b, "%s\r\n", strings.TrimRight(h, "\r\n"))
	}
	if body != nil {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	}
	b.WriteString("Connection: close\r\n\r\n")

	if _, err := io.WriteString(conn, b.String()); err != nil {
		return err
	}
	if body != nil {
		if _, err := conn.Write(body); err != nil {
			return err
		}
	}

	_, err = io.Copy(out, conn)
	return err
}

func dial(opt *options) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", opt.host, opt.port)
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return nil, err
	}
	if !opt.useTLS {
		return conn, nil
	}

	po := tlsopts.NewPeerOptions()
	if opt.cert != "" {
		po.Certs = append(po.Certs, tlsopts.CertKeyPair{CertFile: opt.cert, KeyFile: opt.cert})
	}
	if opt.trustedCA != "" {
		po.CAFiles = append(po.CAFiles, opt.trustedCA)
		po.DefaultCA = false
	}
	if opt.tlsParams != "" {
		if err := tlsopts.ParsePeerDirectives(po, strings.Fields(opt.tlsParams)); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	cfg, terr := tlsopts.BuildClient(po)
	if terr != nil {
		_ = conn.Close()
		return nil, terr
	}
	cfg.ServerName = opt.host
	if opt.anonTLS {
		cfg.InsecureSkipVerify = true
	}

	tc := tls.Client(conn, cfg)
	if err := tc.Handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tc, nil
}

// imsValue accepts either a preformatted HTTP date or unix seconds.
func imsValue(s string) string {
	if t, ok := rfc1123.Parse(s); ok {
		return rfc1123.Format(t)
	}
	var secs int64
	if _, err := fmt.Sscanf(s, "%d", &secs); err == nil {
		return rfc1123.Format(time.Unix(secs, 0))
	}
	return s
}

func hostFrom(url, fallback string) string {
	rest, ok := strings.CutPrefix(url, "http://")
	if !ok {
		rest, ok = strings.CutPrefix(url, "https://")
	}
	if ok {
		if i := strings.IndexAny(rest, "/?"); i >= 0 {
			rest = rest[:i]
		}
		if rest != "" {
			return rest
		}
	}
	return fallback
}
