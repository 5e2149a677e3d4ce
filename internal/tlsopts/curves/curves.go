// Package curves parses squid's elliptic-curve preference token list,
// grounded on nabbar-golib/certificates/curves.
package curves

import (
	"crypto/tls"
	"strings"
)

type Curves uint16

const (
	X25519 = Curves(tls.X25519)
	P256   = Curves(tls.CurveP256)
	P384   = Curves(tls.CurveP384)
	P521   = Curves(tls.CurveP521)
)

var byName = map[string]Curves{
	"x25519": X25519,
	"p256":   P256,
	"p384":   P384,
	"p521":   P521,
}

func Parse(s string) Curves {
	return byName[strings.ToLower(strings.TrimSpace(s))]
}

func (c Curves) Check() bool {
	switch c {
	case X25519, P256, P384, P521:
		return true
	default:
		return false
	}
}

func (c Curves) TLS() tls.CurveID { return tls.CurveID(c) }

// ParseList splits a colon/comma-separated curves= string into the curve
// preference order crypto/tls.Config.CurvePreferences expects.
func ParseList(s string) []tls.CurveID {
	var out []tls.CurveID
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ',' }) {
		if c := Parse(tok); c.Check() {
			out = append(out, c.TLS())
		}
	}
	return out
}
