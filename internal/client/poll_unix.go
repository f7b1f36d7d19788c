//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package client

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// WaitReadable polls the connection's descriptor until data is ready or
// timeout expires. A negative timeout waits indefinitely. It consumes no
// bytes, so it is safe to follow with NextEvent.
func (c *Client) WaitReadable(timeout time.Duration) (bool, error) {
	fd, err := c.Fd()
	if err != nil {
		return false, err
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP) != 0, nil
	}
}
