package ftppeer

import (
	"context"
	"fmt"
	"time"

	libval "github.com/go-playground/validator/v10"
	libftp "github.com/jlaffaye/ftp"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/tlsopts"
)

// Config describes one upstream FTP origin. The gateway creates one peer per
// control session; interception derives Hostname from the destination IP
// while explicit proxying derives it from the USER user@host form.
type Config struct {
	// Hostname is the host:port of the upstream control channel.
	Hostname string `mapstructure:"hostname" json:"hostname" yaml:"hostname" toml:"hostname" validate:"required,hostname_port"`

	// Login and Password are relayed from the client's USER/PASS exchange.
	Login    string `mapstructure:"login" json:"login" yaml:"login" toml:"login"`
	Password string `mapstructure:"password" json:"password" yaml:"password" toml:"password"`

	// ConnTimeout bounds dialing plus each data transfer as one window.
	ConnTimeout time.Duration `mapstructure:"conn_timeout" json:"conn_timeout" yaml:"conn_timeout" toml:"conn_timeout"`

	// DisableEPSV forces the peer half onto PASV even when the upstream
	// advertises RFC 2428 support.
	DisableEPSV bool `mapstructure:"disable_epsv" json:"disable_epsv" yaml:"disable_epsv" toml:"disable_epsv"`

	// DisableMLSD forces LIST where the upstream advertises RFC 3659.
	DisableMLSD bool `mapstructure:"disable_mlsd" json:"disable_mlsd" yaml:"disable_mlsd" toml:"disable_mlsd"`

	// EnableMDTM uses the non-standard writable MDTM in place of MFMT.
	EnableMDTM bool `mapstructure:"enable_mdtm" json:"enable_mdtm" yaml:"enable_mdtm" toml:"enable_mdtm"`

	// ForceTLS upgrades the control channel with AUTH TLS before login.
	ForceTLS bool `mapstructure:"force_tls" json:"force_tls" yaml:"force_tls" toml:"force_tls"`

	// TLS holds the peer-side TLS directives applied when ForceTLS is set.
	TLS *tlsopts.PeerOptions `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`

	fctx func() context.Context
}

// Validate checks the config against its struct constraints.
func (c *Config) Validate() errs.Error {
	err := libval.New().Struct(c)
	if err == nil {
		return nil
	}
	e := ErrInvalidConfig.Error(nil)
	if er, ok := err.(*libval.InvalidValidationError); ok {
		e.Add(er)
		return e
	}
	for _, er := range err.(libval.ValidationErrors) {
		e.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", er.Namespace(), er.ActualTag()))
	}
	return e
}

// RegisterContext installs the accessor for the dial context.
func (c *Config) RegisterContext(fct func() context.Context) {
	c.fctx = fct
}

// New dials the upstream control channel and logs in, returning the raw
// connection for the model to guard.
func (c *Config) New() (*libftp.ServerConn, errs.Error) {
	var opt = make([]libftp.DialOption, 0)

	if c.ForceTLS {
		po := c.TLS
		if po == nil {
			po = tlsopts.NewPeerOptions()
		}
		tlsCfg, err := tlsopts.BuildClient(po)
		if err != nil {
			return nil, err
		}
		opt = append(opt, libftp.DialWithExplicitTLS(tlsCfg))
	}

	if c.fctx != nil {
		opt = append(opt, libftp.DialWithContext(c.fctx()))
	}

	if c.ConnTimeout != 0 {
		opt = append(opt, libftp.DialWithTimeout(c.ConnTimeout))
	}

	if c.DisableEPSV {
		opt = append(opt, libftp.DialWithDisabledEPSV(true))
	}

	if c.DisableMLSD {
		opt = append(opt, libftp.DialWithDisabledMLSD(true))
	}

	if c.EnableMDTM {
		opt = append(opt, libftp.DialWithWritingMDTM(true))
	}

	if cli, err := libftp.Dial(c.Hostname, opt...); err != nil {
		return nil, ErrConnect.Error(err)
	} else if c.Login == "" && c.Password == "" {
		return cli, nil
	} else if err = cli.Login(c.Login, c.Password); err != nil {
		_ = cli.Quit()
		return nil, ErrConnect.Error(err)
	} else {
		return cli, nil
	}
}
