// Command squidcore runs one proxy worker: the reactor, the configured
// listening ports wired to the HTTP state machine and the FTP gateway, and
// (when more than one worker is configured) the kid supervisor.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/squidcore/proxy/internal/config"
	"github.com/squidcore/proxy/internal/ftpgw"
	"github.com/squidcore/proxy/internal/ftppeer"
	"github.com/squidcore/proxy/internal/httpx"
	"github.com/squidcore/proxy/internal/kids"
	"github.com/squidcore/proxy/internal/logging"
	"github.com/squidcore/proxy/internal/portcfg"
	"github.com/squidcore/proxy/internal/reactor"
	"github.com/squidcore/proxy/internal/store"
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:   "squidcore",
		Short: "caching forward/reverse HTTP(S) proxy and FTP gateway",
		RunE:  run,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "configuration file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "panic|fatal|error|warn|info|debug")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*viper.Viper, error) {
	vpr := viper.New()
	vpr.SetEnvPrefix("SQUIDCORE")
	vpr.AutomaticEnv()

	vpr.SetDefault("http_port", []string{"3128"})
	vpr.SetDefault("ftp_port", []string{})
	vpr.SetDefault("https_port", []string{})
	vpr.SetDefault("cache_mem", 4*1024*1024)
	vpr.SetDefault("workers", 1)
	vpr.SetDefault("cache_dirs", 0)

	if flagConfig != "" {
		vpr.SetConfigFile(flagConfig)
		if err := vpr.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return vpr, nil
}

func run(cmd *cobra.Command, args []string) error {
	log := logging.Default()
	log.SetLevel(logging.ParseLevel(flagLogLevel))
	funcLog := func() logging.Logger { return log }

	vpr, err := loadConfig()
	if err != nil {
		return err
	}

	// required config unparseable at startup is system-fatal; cobra's
	// RunE error path exits nonzero after the message
	cpts := config.NewComponents(funcLog)

	rct := reactor.NewReactor()
	cpts.Register("reactor", rct)

	st := store.New()
	httpSrv := httpx.NewServer(st, nil, funcLog)
	httpSrv.MaxInMemoryObject = vpr.GetInt64("cache_mem")

	for i, spec := range vpr.GetStringSlice("http_port") {
		cfg, perr := portcfg.Parse(portcfg.ProtoHTTP, splitTokens(spec))
		if perr != nil {
			return perr
		}
		cpts.Register(fmt.Sprintf("http_port.%d", i), portcfg.NewListener(cfg, httpSrv.ServeConn))
	}

	for i, spec := range vpr.GetStringSlice("https_port") {
		cfg, perr := portcfg.Parse(portcfg.ProtoHTTPS, splitTokens(spec))
		if perr != nil {
			return perr
		}
		cpts.Register(fmt.Sprintf("https_port.%d", i), portcfg.NewListener(cfg, httpSrv.ServeConn))
	}

	for i, spec := range vpr.GetStringSlice("ftp_port") {
		cfg, perr := portcfg.Parse(portcfg.ProtoFTP, splitTokens(spec))
		if perr != nil {
			return perr
		}
		intercepted := cfg.Intercepted
		handler := func(conn net.Conn) {
			host := ""
			if intercepted {
				// the URL is derived from the destination address
				host = conn.LocalAddr().String()
			}
			sess := ftpgw.NewSession(conn, host, intercepted,
				func(c *ftppeer.Config) ftppeer.Peer { return ftppeer.New(c) }, funcLog)
			sess.Serve()
		}
		cpts.Register(fmt.Sprintf("ftp_port.%d", i), portcfg.NewListener(cfg, handler))
	}

	// only the coordinator role supervises kids; a spawned kid finds its
	// slot name in the environment and runs as a plain worker
	if vpr.GetInt("workers") > 1 && os.Getenv(kids.KidNameEnv) == "" {
		roster := kids.Init(vpr.GetInt("workers"), vpr.GetInt("cache_dirs"))
		cpts.Register("kids", kids.NewRunner(roster, nil))
	}

	if cerr := cpts.Start(); cerr != nil {
		return cerr
	}
	log.Entry(logging.InfoLevel, "squidcore started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Entry(logging.InfoLevel, "shutting down")
	cpts.Stop()
	return nil
}

// splitTokens turns one "3128 intercept tcpkeepalive=60,30,3" directive
// value into its token list.
func splitTokens(spec string) []string {
	return strings.Fields(spec)
}
