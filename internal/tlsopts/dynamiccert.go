package tlsopts

import (
	"container/list"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"time"

	"github.com/squidcore/proxy/internal/errs"
)

// SigningCA mints per-hostname leaf certificates on the fly for SslBump
// interception (§"Dynamic cert generation" in the GLOSSARY), bounded by an
// in-memory byte-sized LRU. No example repo in the retrieval pack carries a
// signing-CA minting library, so this is the one explicitly-justified
// stdlib carve-out (crypto/x509 + crypto/rsa have no idiomatic third-party
// replacement for ephemeral leaf-cert minting); see DESIGN.md.
type SigningCA struct {
	trusted   tls.Certificate
	untrusted tls.Certificate

	mu        sync.Mutex
	cache     map[string]*list.Element
	order     *list.List
	byteBudget int
	bytesUsed  int
}

type cacheEntry struct {
	host string
	cert *tls.Certificate
	size int
}

// NewSigningCA generates a fresh self-signed trusted CA keypair and an
// "untrusted" variant (a separately minted self-signed certificate with its
// own key, which is not kept, and a mangled subject/validity so a relying
// party that has not imported Squid's CA sees an obviously different,
// unverifiable issuer) and bounds the generated-cert cache to memCacheBytes.
func NewSigningCA(memCacheBytes int) (*SigningCA, errs.Error) {
	trustedCert, trustedKey, err := mintCA("Squid Dynamic CA", 10*365*24*time.Hour)
	if err != nil {
		return nil, ErrLoadCert.Error(err)
	}
	untrustedCert, _, err := mintCA("Squid Dynamic CA (untrusted)", 24*time.Hour)
	if err != nil {
		return nil, ErrLoadCert.Error(err)
	}

	return &SigningCA{
		trusted:    tls.Certificate{Certificate: [][]byte{trustedCert.Raw}, PrivateKey: trustedKey, Leaf: trustedCert},
		untrusted:  tls.Certificate{Certificate: [][]byte{untrustedCert.Raw}},
		cache:      make(map[string]*list.Element),
		order:      list.New(),
		byteBudget: memCacheBytes,
	}, nil
}

func mintCA(cn string, validity time.Duration) (*x509.Certificate, *rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// GetCertificate is installed as tls.Config.GetCertificate: it returns a
// cached leaf for hello.ServerName if present, else mints and caches one.
func (ca *SigningCA) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	host := hello.ServerName
	if host == "" {
		return &ca.trusted, nil
	}

	ca.mu.Lock()
	if el, ok := ca.cache[host]; ok {
		ca.order.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		ca.mu.Unlock()
		return entry.cert, nil
	}
	ca.mu.Unlock()

	leaf, err := ca.mintLeaf(host)
	if err != nil {
		return nil, err
	}

	ca.mu.Lock()
	ca.insertLocked(host, leaf)
	ca.mu.Unlock()
	return leaf, nil
}

func (ca *SigningCA) mintLeaf(host string) (*tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(30 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	issuer := ca.trusted.Leaf
	der, err := x509.CreateCertificate(rand.Reader, tmpl, issuer, &key.PublicKey, ca.trusted.PrivateKey)
	if err != nil {
		return nil, err
	}

	return &tls.Certificate{
		Certificate: [][]byte{der, ca.trusted.Certificate[0]},
		PrivateKey:  key,
	}, nil
}

// insertLocked adds cert for host to the LRU, evicting the least-recently-
// used entries until bytesUsed fits within byteBudget (0 disables the
// budget check and the cache grows unbounded, matching Budget.Exceeded's
// "0 means no limit" convention elsewhere in this tree).
func (ca *SigningCA) insertLocked(host string, cert *tls.Certificate) {
	size := 0
	for _, der := range cert.Certificate {
		size += len(der)
	}

	entry := &cacheEntry{host: host, cert: cert, size: size}
	el := ca.order.PushFront(entry)
	ca.cache[host] = el
	ca.bytesUsed += size

	for ca.byteBudget > 0 && ca.bytesUsed > ca.byteBudget && ca.order.Len() > 1 {
		back := ca.order.Back()
		if back == nil {
			break
		}
		ev := back.Value.(*cacheEntry)
		ca.order.Remove(back)
		delete(ca.cache, ev.host)
		ca.bytesUsed -= ev.size
	}
}

// Stats reports the current cache occupancy for metrics/cachemgr reports.
func (ca *SigningCA) Stats() (entries int, bytesUsed int) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	return ca.order.Len(), ca.bytesUsed
}
