package client

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/vicictl/internal/protocol"
	"github.com/danmuck/vicictl/internal/protocol/frame"
	"github.com/danmuck/vicictl/internal/protocol/packet"
	"github.com/danmuck/vicictl/internal/protocol/wire"
	"github.com/danmuck/vicictl/internal/testutil/testlog"
	"github.com/danmuck/vicictl/internal/testutil/vicitest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (*Client, *vicitest.Peer) {
	t.Helper()
	conn, peer := vicitest.Pipe(t)
	return New(conn, WithLogger(zerolog.Nop())), peer
}

func TestCallReturnsResponse(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	want := wire.NewMessage().AddString("daemon", "charon").AddString("version", "5.9.14")
	done := peer.Serve(func(p *vicitest.Peer) error {
		req, err := p.Expect(packet.CmdRequest, "version")
		if err != nil {
			return err
		}
		if req.Message != nil && req.Message.Len() != 0 {
			return errors.New("expected empty request body")
		}
		return p.Send(packet.Response(want))
	})

	got, err := c.Call("version", wire.NewMessage())
	require.NoError(t, err)
	require.True(t, want.Equal(got))
	require.NoError(t, <-done)
}

func TestCallEmptyResponseIsEmptyMessage(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.CmdRequest, "reload-settings"); err != nil {
			return err
		}
		return p.Send(packet.Response(nil))
	})

	got, err := c.Call("reload-settings", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 0, got.Len())
	require.NoError(t, <-done)
}

func TestCallUnknownCommand(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.CmdRequest, "frob"); err != nil {
			return err
		}
		return p.Send(
			packet.NewEvent("log", wire.NewMessage().AddString("msg", "noise")),
			packet.Control(packet.CmdUnknown),
		)
	})

	_, err := c.Call("frob", wire.NewMessage().AddString("x", "y"))
	require.ErrorIs(t, err, protocol.ErrUnknownCommand)
	require.NotErrorIs(t, err, protocol.ErrTransport)
	var unknown protocol.UnknownCommandError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, "frob", unknown.Command)
	require.NoError(t, <-done)
}

func TestCallDiscardsInterleavedEvents(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	r := wire.NewMessage().AddString("success", "yes")
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.CmdRequest, "list-sas"); err != nil {
			return err
		}
		return p.Send(
			packet.NewEvent("list-sa", wire.NewMessage().AddString("id", "a")),
			packet.NewEvent("list-sa", wire.NewMessage().AddString("id", "b")),
			packet.Response(r),
		)
	})

	got, err := c.Call("list-sas", wire.NewMessage())
	require.NoError(t, err)
	require.True(t, r.Equal(got))
	require.NoError(t, <-done)
}

func TestCallStreamingDeliversEventsInOrder(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	a := wire.NewMessage().AddSection("a").EndSection()
	b := wire.NewMessage().AddSection("b").EndSection()
	r := wire.NewMessage().AddString("done", "yes")
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.CmdRequest, "list-sas"); err != nil {
			return err
		}
		return p.Send(packet.NewEvent("list-sa", a), packet.NewEvent("list-sa", b), packet.Response(r))
	})

	var seen []*wire.Message
	got, err := c.CallStreaming("list-sas", wire.NewMessage(), func(name string, msg *wire.Message) {
		require.Equal(t, "list-sa", name)
		seen = append(seen, msg)
	})
	require.NoError(t, err)
	require.True(t, r.Equal(got))
	require.Len(t, seen, 2)
	require.True(t, a.Equal(seen[0]))
	require.True(t, b.Equal(seen[1]))
	require.NoError(t, <-done)
}

func TestCallStreamingEventWithoutMessage(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.CmdRequest, "list-conns"); err != nil {
			return err
		}
		return p.SendBody([]byte{byte(packet.Event), 9, 'l', 'i', 's', 't', '-', 'c', 'o', 'n', 'n'})
	})

	called := false
	_, err := c.CallStreaming("list-conns", nil, func(string, *wire.Message) { called = true })
	require.ErrorIs(t, err, packet.ErrMissingFields)
	require.ErrorIs(t, err, protocol.ErrProtocol)
	require.False(t, called)
	require.NoError(t, <-done)
}

func TestCallUnexpectedPacket(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.CmdRequest, "stats"); err != nil {
			return err
		}
		return p.Send(packet.Control(packet.EventConfirm))
	})

	_, err := c.Call("stats", nil)
	require.ErrorIs(t, err, ErrUnexpectedPacket)
	require.NoError(t, <-done)
}

func TestRegisterAndUnregisterEvent(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.EventRegister, "ike-updown"); err != nil {
			return err
		}
		if err := p.Send(packet.Control(packet.EventConfirm)); err != nil {
			return err
		}
		if _, err := p.Expect(packet.EventRegister, "bogus"); err != nil {
			return err
		}
		if err := p.Send(packet.Control(packet.EventUnknown)); err != nil {
			return err
		}
		if _, err := p.Expect(packet.EventUnregister, "ike-updown"); err != nil {
			return err
		}
		return p.Send(packet.Control(packet.EventConfirm))
	})

	require.NoError(t, c.RegisterEvent("ike-updown"))
	subs := c.Subscriptions()
	require.Len(t, subs, 1)
	require.Equal(t, "ike-updown", subs[0].Event)

	err := c.RegisterEvent("bogus")
	require.ErrorIs(t, err, protocol.ErrRegistrationFailed)
	var regErr protocol.RegistrationError
	require.True(t, errors.As(err, &regErr))
	require.Equal(t, "bogus", regErr.Event)
	require.False(t, regErr.Unregister)
	require.Len(t, c.Subscriptions(), 1)

	require.NoError(t, c.UnregisterEvent("ike-updown"))
	require.Empty(t, c.Subscriptions())
	require.NoError(t, <-done)
}

func TestRegisterEventDoesNotDrainEvents(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.EventRegister, "log"); err != nil {
			return err
		}
		return p.Send(packet.NewEvent("ike-updown", wire.NewMessage()))
	})

	err := c.RegisterEvent("log")
	require.ErrorIs(t, err, ErrUnexpectedPacket)
	require.Empty(t, c.Subscriptions())
	require.NoError(t, <-done)
}

func TestUnregisterEventUnknown(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.EventUnregister, "log"); err != nil {
			return err
		}
		return p.Send(packet.Control(packet.EventUnknown))
	})

	err := c.UnregisterEvent("log")
	var regErr protocol.RegistrationError
	require.True(t, errors.As(err, &regErr))
	require.True(t, regErr.Unregister)
	require.NoError(t, <-done)
}

func TestNextEventSkipsNonEvents(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	msg := wire.NewMessage().AddString("up", "yes")
	done := peer.Serve(func(p *vicitest.Peer) error {
		return p.Send(
			packet.Response(wire.NewMessage()),
			packet.Control(packet.EventConfirm),
			packet.NewEvent("ike-updown", msg),
		)
	})

	name, got, err := c.NextEvent()
	require.NoError(t, err)
	require.Equal(t, "ike-updown", name)
	require.True(t, msg.Equal(got))
	require.NoError(t, <-done)
}

func TestNextEventMissingMessage(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		return p.SendBody([]byte{byte(packet.Event), 3, 'l', 'o', 'g'})
	})

	_, _, err := c.NextEvent()
	require.ErrorIs(t, err, packet.ErrMissingFields)
	require.NoError(t, <-done)
}

func TestSendTooLargeWritesNothing(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	big := wire.NewMessage()
	for i := 0; i < 9; i++ {
		big.AddKeyValue("blob", make([]byte, wire.MaxValueLen))
	}

	_, err := c.Call("load-cert", big)
	require.ErrorIs(t, err, frame.ErrBodyTooLarge)
	require.ErrorIs(t, err, protocol.ErrSizeLimit)

	require.NoError(t, peer.Conn().SetReadDeadline(time.Now().Add(30*time.Millisecond)))
	_, err = peer.Recv()
	require.Error(t, err, "peer must not see a partial frame")
	require.NoError(t, peer.Conn().SetReadDeadline(time.Time{}))

	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.CmdRequest, "version"); err != nil {
			return err
		}
		return p.Send(packet.Response(nil))
	})
	_, err = c.Call("version", nil)
	require.NoError(t, err, "oversize send must not poison the connection")
	require.NoError(t, <-done)
}

func TestReceiveTooLargeFrame(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		return p.SendRaw([]byte{0x00, 0x08, 0x00, 0x01})
	})

	_, _, err := c.NextEvent()
	require.ErrorIs(t, err, protocol.ErrSizeLimit)
	require.NoError(t, <-done)

	_, _, err = c.NextEvent()
	require.ErrorIs(t, err, ErrDesynchronized)
}

func TestMalformedPacketBody(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.CmdRequest, "version"); err != nil {
			return err
		}
		return p.SendBody([]byte{byte(packet.CmdResponse), 9, 0})
	})

	_, err := c.Call("version", nil)
	require.ErrorIs(t, err, wire.ErrUnknownTag)
	require.NoError(t, <-done)
}

func TestClosedClientFails(t *testing.T) {
	testlog.Start(t)
	c, _ := newPair(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err := c.Call("version", nil)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, err, protocol.ErrTransport)
}

func TestPipeHasNoRawHandle(t *testing.T) {
	testlog.Start(t)
	c, _ := newPair(t)
	_, err := c.Fd()
	require.ErrorIs(t, err, ErrNoHandle)
}

func TestEmptyNamesAreNames(t *testing.T) {
	testlog.Start(t)
	c, peer := newPair(t)
	done := peer.Serve(func(p *vicitest.Peer) error {
		if _, err := p.Expect(packet.EventRegister, ""); err != nil {
			return err
		}
		if err := p.Send(packet.Control(packet.EventConfirm)); err != nil {
			return err
		}
		if _, err := p.Expect(packet.CmdRequest, ""); err != nil {
			return err
		}
		if err := p.Send(packet.Control(packet.CmdUnknown)); err != nil {
			return err
		}
		return p.SendBody([]byte{byte(packet.Event), 0, byte(wire.KindSectionStart), 1, 's', byte(wire.KindSectionEnd)})
	})

	require.NoError(t, c.RegisterEvent(""))
	_, err := c.Call("", nil)
	require.ErrorIs(t, err, protocol.ErrUnknownCommand)

	name, msg, err := c.NextEvent()
	require.NoError(t, err)
	require.Equal(t, "", name)
	require.Equal(t, 2, msg.Len())
	require.NoError(t, <-done)
}
