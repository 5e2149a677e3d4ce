package tlsopts

import (
	"strconv"
	"strings"

	"github.com/squidcore/proxy/internal/errs"
)

// OptionMask is the accumulated options= bitmask. Its bit layout is
// internal to this package (squid's symbolic names, not OpenSSL's SSL_OP_*
// numeric values). BuildClient and BuildServer do not read it, so a parsed
// mask has no effect on the crypto/tls.Config they return.
type OptionMask uint64

const (
	NoSSLv3 OptionMask = 1 << iota
	NoTLSv1
	NoTLSv1_1
	NoTLSv1_2
	CipherServerPreference
	NoTicket
	NoCompression
	SingleDHUse
	SingleECDHUse
)

var namedOptions = map[string]OptionMask{
	"no_sslv3":                 NoSSLv3,
	"no_tlsv1":                 NoTLSv1,
	"no_tlsv1_1":               NoTLSv1_1,
	"no_tlsv1.1":               NoTLSv1_1,
	"no_tlsv1_2":               NoTLSv1_2,
	"no_tlsv1.2":               NoTLSv1_2,
	"cipher_server_preference": CipherServerPreference,
	"no_ticket":                NoTicket,
	"no_compression":           NoCompression,
	"single_dh_use":            SingleDHUse,
	"single_ecdh_use":          SingleECDHUse,
}

// ParseOptionMask parses a colon/comma-separated options= token stream.
// Each token may be prefixed with '+' (set, the default with no prefix) or
// '!'/'-' (clear). A bare hexadecimal literal (with or without a leading
// "0x") is accepted as a raw bitmask contribution. Unknown symbolic tokens
// are a parse error.
func ParseOptionMask(s string) (OptionMask, errs.Error) {
	var mask OptionMask
	for _, tok := range splitTokens(s) {
		if tok == "" {
			continue
		}
		clear := false
		switch tok[0] {
		case '+':
			tok = tok[1:]
		case '!', '-':
			clear = true
			tok = tok[1:]
		}

		bit, ok := namedOptions[strings.ToLower(tok)]
		if !ok {
			if v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(tok), "0x"), 16, 64); err == nil {
				bit = OptionMask(v)
				ok = true
			}
		}
		if !ok {
			return 0, ErrParseToken.Error(nil)
		}

		if clear {
			mask &^= bit
		} else {
			mask |= bit
		}
	}
	return mask, nil
}

// ApplyMinVersion folds min-version=1.N into the mask by setting NO_SSLv3
// and every NO_TLSv1.x bit below N, per §4.G ("min-version=1.N sets
// NO_TLSv1.0..NO_TLSv1.(N-1)").
func (m OptionMask) ApplyMinVersion(minMinor int) OptionMask {
	m |= NoSSLv3
	if minMinor >= 1 {
		m |= NoTLSv1
	}
	if minMinor >= 2 {
		m |= NoTLSv1_1
	}
	if minMinor >= 3 {
		m |= NoTLSv1_2
	}
	return m
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ',' })
}
