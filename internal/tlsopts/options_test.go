package tlsopts_test

import (
	"crypto/tls"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/squidcore/proxy/internal/tlsopts"
	"github.com/squidcore/proxy/internal/tlsopts/tlsversion"
)

var _ = Describe("option mask", func() {
	It("parses symbolic names with +/!/- prefixes", func() {
		m, err := ParseOptionMask("NO_SSLv3:+NO_TICKET")
		Expect(err).ToNot(HaveOccurred())
		Expect(m & NoSSLv3).ToNot(BeZero())
		Expect(m & NoTicket).ToNot(BeZero())
	})

	It("adding then removing the same option leaves the mask unchanged", func() {
		base, err := ParseOptionMask("NO_SSLv3")
		Expect(err).ToNot(HaveOccurred())

		roundTrip, err := ParseOptionMask("NO_SSLv3,NO_TICKET,!NO_TICKET")
		Expect(err).ToNot(HaveOccurred())
		Expect(roundTrip).To(Equal(base))
	})

	It("accepts a bare hexadecimal literal as a raw bitmask", func() {
		m, err := ParseOptionMask("0x01")
		Expect(err).ToNot(HaveOccurred())
		Expect(m).To(Equal(NoSSLv3))
	})

	It("refuses unknown symbolic tokens", func() {
		_, err := ParseOptionMask("NO_SUCH_OPTION_XYZZY")
		Expect(err).To(HaveOccurred())
	})

	It("folds min-version into the NO_TLSvX mask bits", func() {
		m := OptionMask(0).ApplyMinVersion(2)
		Expect(m & NoSSLv3).ToNot(BeZero())
		Expect(m & NoTLSv1).ToNot(BeZero())
		Expect(m & NoTLSv1_1).ToNot(BeZero())
		Expect(m & NoTLSv1_2).To(BeZero())
	})
})

var _ = Describe("flag mask", func() {
	It("parses the verification-flag vocabulary", func() {
		m, err := ParseFlagMask("NO_DEFAULT_CA:DONT_VERIFY_PEER,VERIFY_CRL")
		Expect(err).ToNot(HaveOccurred())
		Expect(m.Has(NoDefaultCA)).To(BeTrue())
		Expect(m.Has(DontVerifyPeer)).To(BeTrue())
		Expect(m.Has(VerifyCRL)).To(BeTrue())
		Expect(m.Has(VerifyCRLAll)).To(BeFalse())
	})

	It("refuses unknown flags", func() {
		_, err := ParseFlagMask("NOT_A_FLAG")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("directive parsing", func() {
	It("defaults key= to the cert= path when absent", func() {
		po := NewPeerOptions()
		Expect(ParsePeerDirectives(po, []string{"cert=/etc/ssl/a.pem"})).To(Succeed())
		Expect(po.Certs).To(HaveLen(1))
		Expect(po.Certs[0].KeyFile).To(Equal("/etc/ssl/a.pem"))
	})

	It("binds key= to the preceding cert=", func() {
		po := NewPeerOptions()
		Expect(ParsePeerDirectives(po, []string{"cert=a.pem", "key=a.key", "cert=b.pem"})).To(Succeed())
		Expect(po.Certs).To(HaveLen(2))
		Expect(po.Certs[0].KeyFile).To(Equal("a.key"))
		Expect(po.Certs[1].KeyFile).To(Equal("b.pem"))
	})

	It("refuses key= without a preceding cert=", func() {
		po := NewPeerOptions()
		Expect(ParsePeerDirectives(po, []string{"key=a.key"})).ToNot(Succeed())
	})

	It("parses options= exactly once until Reparse", func() {
		po := NewPeerOptions()
		Expect(ParsePeerDirectives(po, []string{"options=NO_SSLv3"})).To(Succeed())
		Expect(ParsePeerDirectives(po, []string{"options=NO_TICKET"})).ToNot(Succeed())

		po.Reparse()
		Expect(ParsePeerDirectives(po, []string{"options=NO_TICKET"})).To(Succeed())
	})

	It("parses min-version and server-only directives", func() {
		so := NewServerOptions()
		toks := []string{
			"cert=a.pem", "min-version=1.2",
			"generate-host-certificates=on",
			"dynamic_cert_mem_cache_size=4194304",
			"clientca=clients.pem", "context=bump1",
		}
		Expect(ParseServerDirectives(so, toks)).To(Succeed())
		Expect(so.MinVersion).To(Equal(tlsversion.TLS12))
		Expect(so.GenerateHostCertificates).To(BeTrue())
		Expect(so.DynamicCertMemCacheSize).To(Equal(4 * 1024 * 1024))
		Expect(so.ClientCAFile).To(Equal("clients.pem"))
		Expect(so.ContextID).To(Equal("bump1"))
	})

	It("refuses unknown tokens", func() {
		po := NewPeerOptions()
		Expect(ParsePeerDirectives(po, []string{"bogus=1"})).ToNot(Succeed())
	})
})

var _ = Describe("signing CA", func() {
	It("mints leaves on demand and serves repeats from cache", func() {
		ca, err := NewSigningCA(1 << 20)
		Expect(err).ToNot(HaveOccurred())

		hello := &tls.ClientHelloInfo{ServerName: "origin.example"}
		first, e := ca.GetCertificate(hello)
		Expect(e).ToNot(HaveOccurred())
		Expect(first.Certificate).ToNot(BeEmpty())

		again, e := ca.GetCertificate(hello)
		Expect(e).ToNot(HaveOccurred())
		Expect(again).To(BeIdenticalTo(first))
	})

	It("bounds the generated-cert cache by bytes", func() {
		ca, err := NewSigningCA(2048) // roughly one leaf chain
		Expect(err).ToNot(HaveOccurred())

		for _, host := range []string{"a.example", "b.example", "c.example"} {
			_, e := ca.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
			Expect(e).ToNot(HaveOccurred())
		}
		entries, bytesUsed := ca.Stats()
		Expect(entries).To(BeNumerically("<", 3))
		Expect(bytesUsed).To(BeNumerically(">", 0))
	})
})

var _ = Describe("certificate database", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "certdb")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("persists and retrieves bundles through the index", func() {
		db, err := OpenCertDB(dir, 1<<20)
		Expect(err).ToNot(HaveOccurred())

		ca, cerr := NewSigningCA(0)
		Expect(cerr).ToNot(HaveOccurred())
		leaf, gerr := ca.GetCertificate(&tls.ClientHelloInfo{ServerName: "stored.example"})
		Expect(gerr).ToNot(HaveOccurred())

		Expect(db.Put("stored.example", "0001", leaf)).To(Succeed())

		pem, ok := db.Get("stored.example")
		Expect(ok).To(BeTrue())
		Expect(string(pem)).To(ContainSubstring("BEGIN CERTIFICATE"))
		Expect(db.Size()).To(BeNumerically(">", 0))

		_, ok = db.Get("never-stored.example")
		Expect(ok).To(BeFalse())
	})

	It("evicts the oldest entries past the byte budget", func() {
		db, err := OpenCertDB(dir, 3000)
		Expect(err).ToNot(HaveOccurred())

		ca, cerr := NewSigningCA(0)
		Expect(cerr).ToNot(HaveOccurred())

		for i, host := range []string{"one.example", "two.example", "three.example"} {
			leaf, gerr := ca.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
			Expect(gerr).ToNot(HaveOccurred())
			Expect(db.Put(host, []string{"0001", "0002", "0003"}[i], leaf)).To(Succeed())
		}

		Expect(db.Size()).To(BeNumerically("<=", 3000))
		if _, ok := db.Get("one.example"); ok {
			// the oldest bundle must have been the one evicted
			Fail("oldest entry survived past the byte budget")
		}
	})
})
