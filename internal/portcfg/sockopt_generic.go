//go:build !linux

package portcfg

// Non-linux builds listen without the transparent-proxy and fine-grained
// keepalive socket options; the connection-level defaults apply instead.
func setListenSockopts(int, bool) error { return nil }

func setKeepAliveSockopts(int, KeepAlive) {}
