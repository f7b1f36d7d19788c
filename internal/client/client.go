package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/vicictl/internal/observability"
	"github.com/danmuck/vicictl/internal/protocol"
	"github.com/danmuck/vicictl/internal/protocol/frame"
	"github.com/danmuck/vicictl/internal/protocol/packet"
	"github.com/danmuck/vicictl/internal/protocol/session"
	"github.com/danmuck/vicictl/internal/protocol/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed              = fmt.Errorf("%w: client: closed", protocol.ErrTransport)
	ErrDesynchronized      = fmt.Errorf("%w: client: stream desynchronized by a partial frame", protocol.ErrProtocol)
	ErrUnexpectedPacket    = fmt.Errorf("%w: client: unexpected packet", protocol.ErrProtocol)
	ErrInHandler           = fmt.Errorf("%w: client: operation issued from an event handler", protocol.ErrProtocol)
	ErrDeadlineUnsupported = errors.New("client: stream does not support deadlines")
	ErrNoHandle            = errors.New("client: stream exposes no raw handle")
)

// Stream is the byte stream a Client owns. Read and write timeouts are only
// available when the stream also has SetReadDeadline/SetWriteDeadline, as
// net.Conn does.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// EventHandler receives events streamed before a command's final response.
// It runs while the command is still in flight, so it must not issue client
// operations; those fail with ErrInHandler. Timeout accessors, Subscriptions
// and Close remain usable.
type EventHandler func(name string, msg *wire.Message)

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.log = logger.With().Str("component", "vici.client").Logger() }
}

func WithLimits(limits frame.Limits) Option {
	return func(c *Client) { c.limits = limits }
}

func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) { c.readTimeout.Store(int64(d)) }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout.Store(int64(d)) }
}

// Client drives one VICI connection. The wire carries no request ids, so
// every operation holds the client for its full request/reply exchange.
type Client struct {
	mu     sync.Mutex
	stream Stream
	limits frame.Limits
	subs   *session.Subscriptions
	log    zerolog.Logger

	readTimeout  atomic.Int64
	writeTimeout atomic.Int64
	// handling is set while an EventHandler runs with mu held.
	handling atomic.Bool
	closed   atomic.Bool

	// Guarded by mu.
	desynced     bool
	readOverride time.Duration
}

// New takes ownership of stream.
func New(stream Stream, opts ...Option) *Client {
	c := &Client{
		stream: stream,
		limits: frame.DefaultLimits(),
		subs:   session.NewSubscriptions(),
		log:    log.Logger.With().Str("component", "vici.client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the stream. It does not wait for an in-flight operation,
// which fails with a transport error once the stream is closed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.stream.Close()
}

// SetReadTimeout bounds every frame read. Zero blocks indefinitely.
func (c *Client) SetReadTimeout(d time.Duration) error {
	if d < 0 {
		return session.ErrInvalidTimeout
	}
	if _, ok := c.stream.(readDeadliner); !ok && d > 0 {
		return ErrDeadlineUnsupported
	}
	c.readTimeout.Store(int64(d))
	return nil
}

// SetWriteTimeout bounds every frame write. Zero blocks indefinitely.
func (c *Client) SetWriteTimeout(d time.Duration) error {
	if d < 0 {
		return session.ErrInvalidTimeout
	}
	if _, ok := c.stream.(writeDeadliner); !ok && d > 0 {
		return ErrDeadlineUnsupported
	}
	c.writeTimeout.Store(int64(d))
	return nil
}

// ReadTimeout is the configured read timeout. A TryNextEvent override in
// progress is not reflected.
func (c *Client) ReadTimeout() time.Duration {
	return time.Duration(c.readTimeout.Load())
}

func (c *Client) WriteTimeout() time.Duration {
	return time.Duration(c.writeTimeout.Load())
}

// Subscriptions lists the events confirmed on this connection.
func (c *Client) Subscriptions() []session.Subscription {
	return c.subs.List()
}

// SyscallConn exposes the raw connection for external poll loops. Callers
// must not read from or write to it.
func (c *Client) SyscallConn() (syscall.RawConn, error) {
	sc, ok := c.stream.(syscall.Conn)
	if !ok {
		return nil, ErrNoHandle
	}
	return sc.SyscallConn()
}

// Fd returns the stream's file descriptor.
func (c *Client) Fd() (uintptr, error) {
	rc, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	if err := rc.Control(func(f uintptr) { fd = f }); err != nil {
		return 0, err
	}
	return fd, nil
}

// Call sends command and waits for its response. Events that arrive first
// are discarded. A response without a body yields an empty message.
func (c *Client) Call(command string, req *wire.Message) (*wire.Message, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.call("call", command, req, nil)
}

// CallStreaming is Call, except events received before the response are
// passed to onEvent in arrival order. onEvent runs with the client busy; see
// EventHandler.
func (c *Client) CallStreaming(command string, req *wire.Message, onEvent EventHandler) (*wire.Message, error) {
	if onEvent == nil {
		onEvent = func(string, *wire.Message) {}
	}
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.call("call_streaming", command, req, onEvent)
}

func (c *Client) call(op, command string, req *wire.Message, onEvent EventHandler) (*wire.Message, error) {
	start := time.Now()
	resp, err := c.exchange(command, req, onEvent)
	outcome := "ok"
	if err != nil {
		outcome = protocol.Kind(err)
		c.fail(op, err)
	}
	observability.RecordCall(command, outcome, time.Since(start))
	return resp, err
}

func (c *Client) exchange(command string, req *wire.Message, onEvent EventHandler) (*wire.Message, error) {
	if err := c.send(packet.Request(command, req)); err != nil {
		return nil, err
	}
	for {
		p, err := c.recv()
		if err != nil {
			return nil, err
		}
		switch p.Type {
		case packet.CmdResponse:
			if p.Message == nil {
				return wire.NewMessage(), nil
			}
			return p.Message, nil
		case packet.CmdUnknown:
			return nil, protocol.UnknownCommandError{Command: command}
		case packet.Event:
			if onEvent == nil {
				c.log.Debug().Str("command", command).Str("event", p.Name).Msg("discarding event while awaiting response")
				continue
			}
			name, msg, err := p.EventFields()
			if err != nil {
				return nil, err
			}
			c.deliver(name)
			c.handle(onEvent, name, msg)
		default:
			return nil, fmt.Errorf("%w: %s while awaiting response to %q", ErrUnexpectedPacket, p.Type, command)
		}
	}
}

// RegisterEvent subscribes the connection to event.
func (c *Client) RegisterEvent(event string) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.confirm(packet.Register(event)); err != nil {
		c.fail("register_event", err)
		return err
	}
	c.subs.Add(event, time.Now())
	return nil
}

// UnregisterEvent removes a subscription made with RegisterEvent.
func (c *Client) UnregisterEvent(event string) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.confirm(packet.Unregister(event)); err != nil {
		c.fail("unregister_event", err)
		return err
	}
	c.subs.Remove(event)
	return nil
}

// confirm sends a (un)registration and reads exactly one reply.
func (c *Client) confirm(p packet.Packet) error {
	if err := c.send(p); err != nil {
		return err
	}
	reply, err := c.recv()
	if err != nil {
		return err
	}
	switch reply.Type {
	case packet.EventConfirm:
		return nil
	case packet.EventUnknown:
		return protocol.RegistrationError{Event: p.Name, Unregister: p.Type == packet.EventUnregister}
	default:
		return fmt.Errorf("%w: %s after %s %q", ErrUnexpectedPacket, reply.Type, p.Type, p.Name)
	}
}

// NextEvent blocks until an event arrives, discarding any other packet.
func (c *Client) NextEvent() (string, *wire.Message, error) {
	if err := c.lock(); err != nil {
		return "", nil, err
	}
	defer c.mu.Unlock()
	name, msg, err := c.nextEvent()
	if err != nil {
		c.fail("next_event", err)
	}
	return name, msg, err
}

// NextEventWithTimeout is NextEvent, but a read timeout surfaces as
// protocol.ErrTimeout instead of a transport error.
func (c *Client) NextEventWithTimeout() (string, *wire.Message, error) {
	if err := c.lock(); err != nil {
		return "", nil, err
	}
	defer c.mu.Unlock()
	return c.nextEventWithTimeout()
}

// TryNextEvent waits at most d for an event. The previous read timeout is
// restored before returning, whatever the outcome.
func (c *Client) TryNextEvent(d time.Duration) (string, *wire.Message, error) {
	if d <= 0 {
		return "", nil, fmt.Errorf("%w: %v", session.ErrInvalidTimeout, d)
	}
	if _, ok := c.stream.(readDeadliner); !ok {
		return "", nil, ErrDeadlineUnsupported
	}
	if err := c.lock(); err != nil {
		return "", nil, err
	}
	defer c.mu.Unlock()

	restore := c.overrideReadTimeout(d)
	defer restore()
	return c.nextEventWithTimeout()
}

// overrideReadTimeout replaces the configured read timeout for reads made
// until the returned restore func runs. Caller holds mu.
func (c *Client) overrideReadTimeout(d time.Duration) func() {
	prev := c.readOverride
	c.readOverride = d
	return func() {
		c.readOverride = prev
		if c.closed.Load() {
			return
		}
		if rd, ok := c.stream.(readDeadliner); ok {
			if err := rd.SetReadDeadline(time.Time{}); err != nil {
				c.log.Debug().Err(err).Msg("clear read deadline after override")
			}
		}
	}
}

// effectiveReadTimeout is the timeout armed for the next read. Caller holds mu.
func (c *Client) effectiveReadTimeout() time.Duration {
	if c.readOverride > 0 {
		return c.readOverride
	}
	return c.ReadTimeout()
}

func (c *Client) nextEventWithTimeout() (string, *wire.Message, error) {
	name, msg, err := c.nextEvent()
	if err != nil && isTimeout(err) {
		c.log.Trace().Dur("read_timeout", c.effectiveReadTimeout()).Msg("no event before timeout")
		observability.RecordError("next_event", "timeout")
		return "", nil, protocol.ErrTimeout
	}
	if err != nil {
		c.fail("next_event", err)
	}
	return name, msg, err
}

func (c *Client) nextEvent() (string, *wire.Message, error) {
	for {
		p, err := c.recv()
		if err != nil {
			return "", nil, err
		}
		if p.Type != packet.Event {
			c.log.Debug().Str("type", p.Type.String()).Msg("discarding non-event packet")
			continue
		}
		name, msg, err := p.EventFields()
		if err != nil {
			return "", nil, err
		}
		c.deliver(name)
		return name, msg, nil
	}
}

// lock acquires mu unless called from inside an EventHandler, where the
// in-flight command already holds it.
func (c *Client) lock() error {
	if c.handling.Load() {
		return ErrInHandler
	}
	c.mu.Lock()
	return nil
}

func (c *Client) handle(onEvent EventHandler, name string, msg *wire.Message) {
	c.handling.Store(true)
	defer c.handling.Store(false)
	onEvent(name, msg)
}

func (c *Client) deliver(event string) {
	c.subs.MarkEvent(event, time.Now())
	observability.RecordEvent(event)
}

func (c *Client) send(p packet.Packet) error {
	if err := c.usable(); err != nil {
		return err
	}
	body, err := packet.Encode(p)
	if err != nil {
		return err
	}
	if wd, ok := c.stream.(writeDeadliner); ok {
		if err := wd.SetWriteDeadline(deadline(c.WriteTimeout())); err != nil {
			return protocol.Transport("set write deadline", err)
		}
	}
	if err := frame.WriteFrame(c.stream, body, c.limits); err != nil {
		if errors.Is(err, protocol.ErrTransport) {
			// A failed write may have left part of the frame on the wire.
			c.desynced = true
		}
		return err
	}
	observability.RecordPacket(observability.DirectionSent, p.Type.String())
	c.log.Trace().Str("type", p.Type.String()).Str("name", p.Name).Int("bytes", len(body)).Msg("packet sent")
	return nil
}

func (c *Client) recv() (packet.Packet, error) {
	if err := c.usable(); err != nil {
		return packet.Packet{}, err
	}
	if rd, ok := c.stream.(readDeadliner); ok {
		if err := rd.SetReadDeadline(deadline(c.effectiveReadTimeout())); err != nil {
			return packet.Packet{}, protocol.Transport("set read deadline", err)
		}
	}
	body, err := frame.ReadFrame(c.stream, c.limits)
	if err != nil {
		if errors.Is(err, frame.ErrPartialFrame) {
			c.desynced = true
		}
		return packet.Packet{}, err
	}
	p, err := packet.Decode(body)
	if err != nil {
		return packet.Packet{}, err
	}
	observability.RecordPacket(observability.DirectionReceived, p.Type.String())
	c.log.Trace().Str("type", p.Type.String()).Str("name", p.Name).Int("bytes", len(body)).Msg("packet received")
	return p, nil
}

func (c *Client) usable() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.desynced {
		return ErrDesynchronized
	}
	return nil
}

func (c *Client) fail(op string, err error) {
	kind := protocol.Kind(err)
	observability.RecordError(op, kind)
	c.log.Debug().Str("op", op).Str("kind", kind).Err(err).Msg("operation failed")
}

func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// isTimeout reports a read that gave up waiting without consuming any part
// of a frame.
func isTimeout(err error) bool {
	if errors.Is(err, frame.ErrPartialFrame) {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
