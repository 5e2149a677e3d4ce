package tlsopts

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/tlsopts/cipher"
	"github.com/squidcore/proxy/internal/tlsopts/curves"
)

// BuildClient constructs a client-side *tls.Config from po: certificate
// chain (for mutual TLS), CA trust, cipher/curve preference, minimum
// version, and NPN/session-reuse knobs. Exactly one of {static cert,
// generated cert} applies per listening HTTPS port (§4.G invariant); a
// client config never has a generated-cert path, only a static one.
func BuildClient(po *PeerOptions) (*tls.Config, errs.Error) {
	cfg := &tls.Config{
		MinVersion:         po.MinVersion.Uint16(),
		ServerName:         po.Domain,
		CipherSuites:       cipher.ParseList(po.Cipher),
		CurvePreferences:   curves.ParseList(po.Cipher),
		InsecureSkipVerify: po.Flags.Has(DontVerifyPeer),
		NextProtos:         npnProtos(po.NoNPN),
	}

	if err := loadCerts(cfg, po.Certs); err != nil {
		return nil, err
	}
	if err := loadCA(cfg, po); err != nil {
		return nil, err
	}
	if po.Flags.Has(NoSessionReuse) {
		cfg.SessionTicketsDisabled = true
	}
	return cfg, nil
}

// BuildServer constructs a server-side *tls.Config from so. When
// GenerateHostCertificates is set, GetCertificate is wired to the dynamic
// signing CA (dynamiccert.go) instead of a single static certificate.
func BuildServer(so *ServerOptions) (*tls.Config, errs.Error) {
	cfg := &tls.Config{
		MinVersion:       so.MinVersion.Uint16(),
		CipherSuites:     cipher.ParseList(so.Cipher),
		CurvePreferences: curves.ParseList(so.Cipher),
		ClientAuth:       so.ClientAuth.TLS(),
		NextProtos:       npnProtos(so.NoNPN),
	}

	if err := loadCerts(cfg, so.Certs); err != nil {
		return nil, err
	}
	if err := loadCA(cfg, &so.PeerOptions); err != nil {
		return nil, err
	}
	if so.ClientCAFile != "" {
		pool, err := loadCertPool(so.ClientCAFile)
		if err != nil {
			return nil, ErrLoadCert.Error(err)
		}
		cfg.ClientCAs = pool
	}
	if so.Flags.Has(NoSessionReuse) {
		cfg.SessionTicketsDisabled = true
	}

	if so.GenerateHostCertificates {
		ca, err := NewSigningCA(so.DynamicCertMemCacheSize)
		if err != nil {
			return nil, err
		}
		cfg.GetCertificate = ca.GetCertificate
	}

	return cfg, nil
}

func npnProtos(disabled bool) []string {
	if disabled {
		return nil
	}
	return []string{"h2", "http/1.1"}
}

func loadCerts(cfg *tls.Config, pairs []CertKeyPair) errs.Error {
	for _, p := range pairs {
		c, err := tls.LoadX509KeyPair(p.CertFile, p.KeyFile)
		if err != nil {
			return ErrLoadCert.Error(err)
		}
		cfg.Certificates = append(cfg.Certificates, c)
	}
	return nil
}

func loadCA(cfg *tls.Config, po *PeerOptions) errs.Error {
	if len(po.CAFiles) == 0 && po.CADir == "" && !po.DefaultCA {
		return nil
	}

	var pool *x509.CertPool
	var err error
	if po.DefaultCA {
		pool, err = x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
	} else {
		pool = x509.NewCertPool()
	}

	for _, f := range po.CAFiles {
		if e := appendCAFile(pool, f); e != nil {
			return ErrLoadCert.Error(e)
		}
	}
	if po.CADir != "" {
		entries, e := os.ReadDir(po.CADir)
		if e != nil {
			return ErrLoadCert.Error(e)
		}
		for _, ent := range entries {
			if ent.IsDir() {
				continue
			}
			if e := appendCAFile(pool, po.CADir+"/"+ent.Name()); e != nil {
				return ErrLoadCert.Error(e)
			}
		}
	}

	cfg.RootCAs = pool
	return nil
}

func appendCAFile(pool *x509.CertPool, path string) error {
	pem, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pool.AppendCertsFromPEM(pem)
	return nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if err := appendCAFile(pool, path); err != nil {
		return nil, err
	}
	return pool, nil
}
