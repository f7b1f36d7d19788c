//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package client

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/vicictl/internal/protocol/packet"
	"github.com/danmuck/vicictl/internal/protocol/session"
	"github.com/danmuck/vicictl/internal/protocol/wire"
	"github.com/danmuck/vicictl/internal/testutil/testlog"
	"github.com/danmuck/vicictl/internal/testutil/vicitest"
	"github.com/stretchr/testify/require"
)

func TestWaitReadableOnUnixSocket(t *testing.T) {
	testlog.Start(t)
	release := make(chan struct{})
	path, done := vicitest.ListenUnix(t, func(p *vicitest.Peer) error {
		<-release
		return p.Send(packet.NewEvent("log", wire.NewMessage().AddString("msg", "hi")))
	})

	cfg := session.DefaultConfig()
	cfg.Endpoint = path
	c, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	fd, err := c.Fd()
	require.NoError(t, err)
	require.NotZero(t, fd)

	ready, err := c.WaitReadable(20 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ready)

	close(release)
	ready, err = c.WaitReadable(2 * time.Second)
	require.NoError(t, err)
	require.True(t, ready)

	name, _, err := c.NextEvent()
	require.NoError(t, err)
	require.Equal(t, "log", name)
	require.NoError(t, <-done)
}
