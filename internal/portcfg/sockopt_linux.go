//go:build linux

package portcfg

import "golang.org/x/sys/unix"

// setListenSockopts applies SO_REUSEADDR and, for tproxy ports, the
// IP_TRANSPARENT option the kernel redirect path requires.
func setListenSockopts(fd int, tproxy bool) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	if tproxy {
		return unix.SetsockoptInt(fd, unix.SOL_IP, unix.IP_TRANSPARENT, 1)
	}
	return nil
}

// setKeepAliveSockopts applies the per-port keepalive quadruple.
func setKeepAliveSockopts(fd int, ka KeepAlive) {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	if ka.Idle > 0 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, ka.Idle)
	}
	if ka.Interval > 0 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, ka.Interval)
	}
	if ka.Timeout > 0 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, ka.Timeout)
	}
}
