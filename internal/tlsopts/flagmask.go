package tlsopts

import (
	"strings"

	"github.com/squidcore/proxy/internal/errs"
)

// FlagMask is the flags= verification-policy bitmask.
type FlagMask uint32

const (
	NoDefaultCA FlagMask = 1 << iota
	DelayedAuth
	DontVerifyPeer
	DontVerifyDomain
	NoSessionReuse
	VerifyCRL
	VerifyCRLAll
)

var namedFlags = map[string]FlagMask{
	"no_default_ca":      NoDefaultCA,
	"delayed_auth":       DelayedAuth,
	"dont_verify_peer":   DontVerifyPeer,
	"dont_verify_domain": DontVerifyDomain,
	"no_session_reuse":   NoSessionReuse,
	"verify_crl":         VerifyCRL,
	"verify_crl_all":     VerifyCRLAll,
}

// ParseFlagMask parses a colon/comma-separated flags= list.
func ParseFlagMask(s string) (FlagMask, errs.Error) {
	var mask FlagMask
	for _, tok := range splitTokens(s) {
		if tok == "" {
			continue
		}
		bit, ok := namedFlags[strings.ToLower(tok)]
		if !ok {
			return 0, ErrParseToken.Error(nil)
		}
		mask |= bit
	}
	return mask, nil
}

func (m FlagMask) Has(bit FlagMask) bool { return m&bit != 0 }
