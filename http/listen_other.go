//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package http

import (
	"errors"
	"syscall"
)

func reusePortControl(network, address string, rc syscall.RawConn) error {
	return errors.New("http: SO_REUSEPORT is not supported on this platform")
}
