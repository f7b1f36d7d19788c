package client

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/vicictl/internal/protocol"
	"github.com/danmuck/vicictl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Dial connects to cfg.Endpoint, retrying with backoff until
// cfg.MaxConnectAttempts is exhausted (zero retries until ctx is done), and
// returns a Client with the configured timeouts. Options apply after them.
func Dial(ctx context.Context, cfg session.Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}
	ep, err := session.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	var attempt int
	for {
		attempt++
		conn, err := dialer.DialContext(ctx, ep.Network, ep.Address)
		if err == nil {
			log.Debug().Str("endpoint", ep.String()).Int("attempt", attempt).Msg("connected")
			base := []Option{WithReadTimeout(cfg.ReadTimeout), WithWriteTimeout(cfg.WriteTimeout)}
			return New(conn, append(base, opts...)...), nil
		}
		log.Warn().Str("endpoint", ep.String()).Int("attempt", attempt).Err(err).Msg("dial failed")
		if !shouldRetry(cfg, attempt) {
			return nil, protocol.Transport("dial "+ep.String(), err)
		}
		if err := sleepBackoff(ctx, cfg.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

func shouldRetry(cfg session.Config, attempt int) bool {
	if cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < cfg.MaxConnectAttempts
}

func sleepBackoff(ctx context.Context, b session.BackoffConfig, attempt int, rng *rand.Rand) error {
	timer := time.NewTimer(b.Delay(attempt, rng))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
