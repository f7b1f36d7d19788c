// Package vicitest provides a scripted daemon side of a VICI connection for
// tests.
package vicitest

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"

	"github.com/danmuck/vicictl/internal/protocol/frame"
	"github.com/danmuck/vicictl/internal/protocol/packet"
)

// Peer is the daemon end of a test connection.
type Peer struct {
	conn   net.Conn
	limits frame.Limits
}

func NewPeer(conn net.Conn) *Peer {
	return &Peer{conn: conn, limits: frame.DefaultLimits()}
}

// Pipe returns the client end of an in-memory connection and the peer
// driving the other end. Both ends close on test cleanup.
func Pipe(t testing.TB) (net.Conn, *Peer) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, NewPeer(b)
}

func (p *Peer) Conn() net.Conn {
	return p.conn
}

func (p *Peer) Close() error {
	return p.conn.Close()
}

func (p *Peer) Recv() (packet.Packet, error) {
	body, err := frame.ReadFrame(p.conn, p.limits)
	if err != nil {
		return packet.Packet{}, err
	}
	return packet.Decode(body)
}

// Expect reads one packet and checks its type and name.
func (p *Peer) Expect(typ packet.Type, name string) (packet.Packet, error) {
	got, err := p.Recv()
	if err != nil {
		return packet.Packet{}, err
	}
	if got.Type != typ || got.Name != name {
		return got, fmt.Errorf("vicitest: got %s %q, want %s %q", got.Type, got.Name, typ, name)
	}
	return got, nil
}

func (p *Peer) Send(pkts ...packet.Packet) error {
	for _, pkt := range pkts {
		body, err := packet.Encode(pkt)
		if err != nil {
			return err
		}
		if err := frame.WriteFrame(p.conn, body, p.limits); err != nil {
			return err
		}
	}
	return nil
}

// SendBody frames an already encoded (possibly malformed) packet body.
func (p *Peer) SendBody(body []byte) error {
	_, err := p.conn.Write(frame.Encode(body))
	return err
}

// SendRaw writes bytes with no framing at all.
func (p *Peer) SendRaw(b []byte) error {
	_, err := p.conn.Write(b)
	return err
}

// Serve runs script on its own goroutine and reports its result.
func (p *Peer) Serve(script func(p *Peer) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- script(p)
	}()
	return done
}

// ListenUnix serves one connection on a UNIX socket in a temp dir with
// script and returns the socket path.
func ListenUnix(t testing.TB, script func(p *Peer) error) (string, <-chan error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "charon.vici")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen unix: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
			done <- err
			return
		}
		defer conn.Close()
		done <- script(NewPeer(conn))
	}()
	return path, done
}
