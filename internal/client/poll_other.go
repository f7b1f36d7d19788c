//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package client

import (
	"errors"
	"time"
)

func (c *Client) WaitReadable(timeout time.Duration) (bool, error) {
	return false, errors.ErrUnsupported
}
