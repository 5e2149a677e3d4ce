// Package cipher parses the squid `cipher=` token list into crypto/tls
// cipher suite constants, grounded on nabbar-golib/certificates/cipher.
package cipher

import (
	"crypto/tls"
	"strings"
)

type Cipher uint16

const (
	TLS_RSA_WITH_AES_128_GCM_SHA256              = Cipher(tls.TLS_RSA_WITH_AES_128_GCM_SHA256)
	TLS_RSA_WITH_AES_256_GCM_SHA384              = Cipher(tls.TLS_RSA_WITH_AES_256_GCM_SHA384)
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256        = Cipher(tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256      = Cipher(tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256)
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384        = Cipher(tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384)
	TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384      = Cipher(tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384)
	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256  = Cipher(tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305)
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256 = Cipher(tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305)
	TLS_AES_128_GCM_SHA256                       = Cipher(tls.TLS_AES_128_GCM_SHA256)
	TLS_AES_256_GCM_SHA384                       = Cipher(tls.TLS_AES_256_GCM_SHA384)
	TLS_CHACHA20_POLY1305_SHA256                 = Cipher(tls.TLS_CHACHA20_POLY1305_SHA256)
)

var byName = map[string]Cipher{
	"tls_rsa_with_aes_128_gcm_sha256":                TLS_RSA_WITH_AES_128_GCM_SHA256,
	"tls_rsa_with_aes_256_gcm_sha384":                TLS_RSA_WITH_AES_256_GCM_SHA384,
	"tls_ecdhe_rsa_with_aes_128_gcm_sha256":           TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"tls_ecdhe_ecdsa_with_aes_128_gcm_sha256":         TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"tls_ecdhe_rsa_with_aes_256_gcm_sha384":           TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"tls_ecdhe_ecdsa_with_aes_256_gcm_sha384":         TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"tls_ecdhe_rsa_with_chacha20_poly1305_sha256":     TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"tls_ecdhe_ecdsa_with_chacha20_poly1305_sha256":   TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	"tls_aes_128_gcm_sha256":                          TLS_AES_128_GCM_SHA256,
	"tls_aes_256_gcm_sha384":                          TLS_AES_256_GCM_SHA384,
	"tls_chacha20_poly1305_sha256":                    TLS_CHACHA20_POLY1305_SHA256,
}

// Parse resolves a single colon/comma-separated cipher token by name,
// returning 0 if unrecognized.
func Parse(s string) Cipher {
	return byName[strings.ToLower(strings.TrimSpace(s))]
}

func (c Cipher) Check() bool {
	switch c {
	case TLS_RSA_WITH_AES_128_GCM_SHA256, TLS_RSA_WITH_AES_256_GCM_SHA384,
		TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256, TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		TLS_AES_128_GCM_SHA256, TLS_AES_256_GCM_SHA384, TLS_CHACHA20_POLY1305_SHA256:
		return true
	default:
		return false
	}
}

func (c Cipher) Uint16() uint16 { return uint16(c) }

// ParseList splits a colon/comma-separated cipher= string into the suites
// crypto/tls.Config.CipherSuites expects, dropping unrecognized tokens.
func ParseList(s string) []uint16 {
	var out []uint16
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ',' }) {
		if c := Parse(tok); c.Check() {
			out = append(out, c.Uint16())
		}
	}
	return out
}
