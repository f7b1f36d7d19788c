package session

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	NetworkUnix = "unix"
	NetworkTCP  = "tcp"
)

var (
	ErrEndpointRequired   = errors.New("session: endpoint required")
	ErrInvalidEndpoint    = errors.New("session: invalid endpoint")
	ErrInvalidTimeout     = errors.New("session: invalid timeout")
	ErrInvalidMaxAttempts = errors.New("session: invalid max connect attempts")
)

// Endpoint is a dialable daemon address.
type Endpoint struct {
	Network string
	Address string
}

func (e Endpoint) String() string {
	if e.Network == NetworkUnix {
		return "unix://" + e.Address
	}
	return e.Network + "://" + e.Address
}

// ParseEndpoint accepts a bare socket path, unix:///path or tcp://host:port.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, ErrEndpointRequired
	}
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Endpoint{Network: NetworkUnix, Address: raw}, nil
	}
	switch strings.ToLower(scheme) {
	case NetworkUnix:
		if rest == "" {
			return Endpoint{}, fmt.Errorf("%w: %q: missing socket path", ErrInvalidEndpoint, raw)
		}
		return Endpoint{Network: NetworkUnix, Address: rest}, nil
	case NetworkTCP:
		host, port, err := net.SplitHostPort(rest)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, raw, err)
		}
		if port == "" {
			return Endpoint{}, fmt.Errorf("%w: %q: missing port", ErrInvalidEndpoint, raw)
		}
		return Endpoint{Network: NetworkTCP, Address: net.JoinHostPort(host, port)}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidEndpoint, raw, scheme)
	}
}

// ValidateClientTransport checks the endpoint and timeout settings.
func (c Config) ValidateClientTransport() error {
	if _, err := ParseEndpoint(c.Endpoint); err != nil {
		return err
	}
	if c.ConnectTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.MaxConnectAttempts < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxAttempts, c.MaxConnectAttempts)
	}
	return nil
}
