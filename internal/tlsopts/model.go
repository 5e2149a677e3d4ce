package tlsopts

import (
	"github.com/squidcore/proxy/internal/tlsopts/clientauth"
	"github.com/squidcore/proxy/internal/tlsopts/tlsversion"
)

// CertKeyPair is one cert=/key= directive pair; key defaults to cert's
// path when no explicit key= follows it.
type CertKeyPair struct {
	CertFile string
	KeyFile  string
}

// PeerOptions is the declarative TLS configuration shared by outgoing
// connections and plain listening ports.
type PeerOptions struct {
	Certs      []CertKeyPair
	CAFiles    []string
	CADir      string
	CRLFile    string
	Cipher     string
	Options    OptionMask
	Flags      FlagMask
	MinVersion tlsversion.Version
	Domain     string // SNI / domain hint
	NoNPN      bool
	DefaultCA  bool
	Disabled   bool

	optionsParsed bool
}

// ServerOptions extends PeerOptions with the server-only directives.
type ServerOptions struct {
	PeerOptions

	ClientCAFile              string
	ClientAuth                clientauth.ClientAuth
	DHParamsFile              string
	DHCurve                   string
	DynamicCertMemCacheSize   int
	GenerateHostCertificates  bool
	ContextID                 string
}

// NewPeerOptions returns a PeerOptions with DefaultCA on, matching the
// teacher's InheritDefault-on convention for a freshly constructed config.
func NewPeerOptions() *PeerOptions {
	return &PeerOptions{DefaultCA: true}
}

func NewServerOptions() *ServerOptions {
	return &ServerOptions{PeerOptions: *NewPeerOptions()}
}
