// Package tlsversion parses the squid.conf `min-version=1.N` token
// vocabulary into a crypto/tls version constant, grounded on
// nabbar-golib/certificates/tlsversion's Version type and its Parse/
// ParseInt/String/Uint16 method set.
package tlsversion

import (
	"crypto/tls"
	"encoding/json"
	"strings"
)

// Version wraps a crypto/tls version constant with config-token parsing.
type Version int

const (
	Unknown Version = iota
	TLS10           = Version(tls.VersionTLS10)
	TLS11           = Version(tls.VersionTLS11)
	TLS12           = Version(tls.VersionTLS12)
	TLS13           = Version(tls.VersionTLS13)
)

// Parse accepts the squid `min-version=1.2` style token, tolerant of a
// leading "tls"/"ssl" word and '.'/'-'/'_' separators.
func Parse(s string) Version {
	s = strings.ToLower(s)
	for _, tok := range []string{"\"", "'", "tls", "ssl", ".", "-", "_", " "} {
		s = strings.ReplaceAll(s, tok, "")
	}
	switch s {
	case "1", "10":
		return TLS10
	case "11":
		return TLS11
	case "12":
		return TLS12
	case "13":
		return TLS13
	default:
		return Unknown
	}
}

func (v Version) String() string {
	switch v {
	case TLS10:
		return "TLS 1.0"
	case TLS11:
		return "TLS 1.1"
	case TLS12:
		return "TLS 1.2"
	case TLS13:
		return "TLS 1.3"
	default:
		return ""
	}
}

// Uint16 returns the crypto/tls version constant, or 0 for Unknown.
func (v Version) Uint16() uint16 { return uint16(v) }

func (v Version) MarshalJSON() ([]byte, error) { return json.Marshal(v.String()) }

func (v *Version) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*v = Parse(s)
	return nil
}
