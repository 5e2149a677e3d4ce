package tlsopts

import (
	"strconv"
	"strings"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/tlsopts/clientauth"
	"github.com/squidcore/proxy/internal/tlsopts/tlsversion"
)

func splitDirective(tok string) (key, value string) {
	if i := strings.IndexByte(tok, '='); i >= 0 {
		return strings.ToLower(tok[:i]), tok[i+1:]
	}
	return strings.ToLower(tok), ""
}

// ParsePeerDirectives applies the common cert=/key=/cafile=/capath=/
// crlfile=/cipher=/options=/min-version=/flags=/default-ca=/no-npn/disable
// token vocabulary to po. After the first successful parse, `options=` is
// considered consumed; a second `options=` directive is refused unless the
// caller explicitly clears po's internal guard via Reparse.
func ParsePeerDirectives(po *PeerOptions, tokens []string) errs.Error {
	var pendingCert *CertKeyPair

	for _, tok := range tokens {
		key, val := splitDirective(tok)
		switch key {
		case "cert":
			if pendingCert != nil {
				po.Certs = append(po.Certs, *pendingCert)
			}
			pendingCert = &CertKeyPair{CertFile: val, KeyFile: val}
		case "key":
			if pendingCert == nil {
				return ErrMissingCert.Error(nil)
			}
			pendingCert.KeyFile = val
		case "cafile":
			po.CAFiles = append(po.CAFiles, val)
		case "capath":
			po.CADir = val
		case "crlfile":
			po.CRLFile = val
		case "cipher":
			po.Cipher = val
		case "options":
			if po.optionsParsed {
				return ErrReparse.Error(nil)
			}
			m, err := ParseOptionMask(val)
			if err != nil {
				return err
			}
			po.Options = m
			po.optionsParsed = true
		case "flags":
			m, err := ParseFlagMask(val)
			if err != nil {
				return err
			}
			po.Flags = m
		case "min-version":
			v := tlsversion.Parse(val)
			if v == tlsversion.Unknown {
				return ErrParseToken.Error(nil)
			}
			po.MinVersion = v
		case "default-ca":
			po.DefaultCA = val == "on" || val == "" || val == "1" || val == "true"
		case "no-npn":
			po.NoNPN = true
		case "disable":
			po.Disabled = true
		case "domain", "sni":
			po.Domain = val
		default:
			return ErrParseToken.Error(nil)
		}
	}
	if pendingCert != nil {
		po.Certs = append(po.Certs, *pendingCert)
	}
	return nil
}

// Reparse clears the options-already-parsed guard so a subsequent
// ParsePeerDirectives call may set options= again (a config reload).
func (po *PeerOptions) Reparse() { po.optionsParsed = false }

// ParseServerDirectives applies the server-only clientca=/dh=/
// dynamic_cert_mem_cache_size=/generate-host-certificates=/context=
// directives, delegating everything else to ParsePeerDirectives.
func ParseServerDirectives(so *ServerOptions, tokens []string) errs.Error {
	var peerTokens []string
	for _, tok := range tokens {
		key, val := splitDirective(tok)
		switch key {
		case "clientca":
			so.ClientCAFile = val
			so.ClientAuth = clientauth.RequireAndVerifyClientCert
		case "dh":
			if i := strings.IndexByte(val, ':'); i >= 0 {
				so.DHCurve = val[:i]
				so.DHParamsFile = val[i+1:]
			} else {
				so.DHParamsFile = val
			}
		case "dynamic_cert_mem_cache_size":
			n, err := strconv.Atoi(val)
			if err != nil {
				return ErrParseToken.Error(err)
			}
			so.DynamicCertMemCacheSize = n
		case "generate-host-certificates":
			so.GenerateHostCertificates = val == "on" || val == "" || val == "1" || val == "true"
		case "context":
			so.ContextID = val
		default:
			peerTokens = append(peerTokens, tok)
		}
	}
	return ParsePeerDirectives(&so.PeerOptions, peerTokens)
}
