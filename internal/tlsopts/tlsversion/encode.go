package tlsversion

import (
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// MarshalYAML/UnmarshalYAML and MarshalCBOR/UnmarshalCBOR round out the
// multi-format codec set the teacher attaches to every config-token type,
// since PortCfg/TLS configuration is decoded from whichever format viper
// loaded (YAML is squid.conf's closest declarative analogue in this port).
// The on-disk certificate database keeps a plain-text index and does not
// use the CBOR pair.
func (v Version) MarshalYAML() (interface{}, error) { return v.String(), nil }

func (v *Version) UnmarshalYAML(node *yaml.Node) error {
	*v = Parse(node.Value)
	return nil
}

func (v Version) MarshalCBOR() ([]byte, error) { return cbor.Marshal(v.String()) }

func (v *Version) UnmarshalCBOR(b []byte) error {
	var s string
	if err := cbor.Unmarshal(b, &s); err != nil {
		return err
	}
	*v = Parse(s)
	return nil
}
