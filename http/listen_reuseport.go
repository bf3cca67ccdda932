//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package http

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func reusePortControl(network, address string, rc syscall.RawConn) error {
	var sockErr error
	err := rc.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
