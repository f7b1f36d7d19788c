// Package listener runs a long-lived event loop over a client connection.
package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/vicictl/internal/protocol"
	"github.com/danmuck/vicictl/internal/protocol/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = 500 * time.Millisecond

var (
	ErrNoEvents        = errors.New("listener: no events configured")
	ErrInvalidInterval = errors.New("listener: poll interval must be positive")
)

// Conn is the part of a client the listener drives.
type Conn interface {
	RegisterEvent(event string) error
	UnregisterEvent(event string) error
	TryNextEvent(d time.Duration) (string, *wire.Message, error)
}

// Handler receives each event. A non-nil error stops the listener.
type Handler func(event string, msg *wire.Message) error

type Config struct {
	Events       []string
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

func (c Config) validate() error {
	if len(c.Events) == 0 {
		return ErrNoEvents
	}
	for _, event := range c.Events {
		if strings.TrimSpace(event) == "" {
			return fmt.Errorf("%w: empty event name", ErrNoEvents)
		}
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, c.PollInterval)
	}
	return nil
}

type Listener struct {
	conn      Conn
	cfg       Config
	handler   Handler
	log       zerolog.Logger
	delivered atomic.Uint64
}

func New(conn Conn, cfg Config, h Handler) *Listener {
	if h == nil {
		h = func(string, *wire.Message) error { return nil }
	}
	return &Listener{
		conn:    conn,
		cfg:     cfg.withDefaults(),
		handler: h,
		log:     log.Logger.With().Str("component", "vici.listener").Logger(),
	}
}

func (l *Listener) WithLogger(logger zerolog.Logger) *Listener {
	l.log = logger.With().Str("component", "vici.listener").Logger()
	return l
}

// Delivered is the number of events passed to the handler.
func (l *Listener) Delivered() uint64 {
	return l.delivered.Load()
}

// Run registers every configured event and dispatches events until ctx is
// done, the handler fails or the connection fails. Cancellation is noticed
// within one poll interval and returns nil. Registered events are
// unregistered on the way out; failures there are only logged.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.cfg.validate(); err != nil {
		return err
	}

	registered := make([]string, 0, len(l.cfg.Events))
	defer func() { l.unregister(registered) }()
	for _, event := range l.cfg.Events {
		if err := l.conn.RegisterEvent(event); err != nil {
			return fmt.Errorf("listener: register %q: %w", event, err)
		}
		registered = append(registered, event)
		l.log.Info().Str("event", event).Msg("registered")
	}

	for {
		if ctx.Err() != nil {
			l.log.Debug().Uint64("delivered", l.delivered.Load()).Msg("listener stopping")
			return nil
		}
		name, msg, err := l.conn.TryNextEvent(l.cfg.PollInterval)
		switch {
		case errors.Is(err, protocol.ErrTimeout):
			continue
		case err != nil:
			l.log.Error().Err(err).Str("kind", protocol.Kind(err)).Msg("listener receive failed")
			return err
		}
		l.delivered.Add(1)
		l.log.Debug().Str("event", name).Int("elements", msg.Len()).Msg("event")
		if err := l.handler(name, msg); err != nil {
			return fmt.Errorf("listener: handle %q: %w", name, err)
		}
	}
}

func (l *Listener) unregister(events []string) {
	for _, event := range events {
		if err := l.conn.UnregisterEvent(event); err != nil {
			l.log.Warn().Str("event", event).Err(err).Msg("unregister failed")
			continue
		}
		l.log.Info().Str("event", event).Msg("unregistered")
	}
}
