package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/vicictl/internal/testutil/testlog"
)

func TestBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := cfg.Delay(1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := cfg.Delay(2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := cfg.Delay(3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := cfg.Delay(6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
	if got := (BackoffConfig{}).Delay(3, nil); got != 0 {
		t.Fatalf("zero config got=%v", got)
	}
}

func TestBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 32; i++ {
		got := cfg.Delay(1, rng)
		if got < 125*time.Millisecond || got >= 375*time.Millisecond {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		raw  string
		want Endpoint
	}{
		{"/var/run/charon.vici", Endpoint{Network: NetworkUnix, Address: "/var/run/charon.vici"}},
		{"unix:///tmp/vici.sock", Endpoint{Network: NetworkUnix, Address: "/tmp/vici.sock"}},
		{"tcp://127.0.0.1:4502", Endpoint{Network: NetworkTCP, Address: "127.0.0.1:4502"}},
		{" TCP://[::1]:4502 ", Endpoint{Network: NetworkTCP, Address: "[::1]:4502"}},
	}
	for _, tc := range cases {
		got, err := ParseEndpoint(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got %+v want %+v", tc.raw, got, tc.want)
		}
	}
}

func TestParseEndpointRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	if _, err := ParseEndpoint("  "); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("expected ErrEndpointRequired, got %v", err)
	}
	for _, raw := range []string{"unix://", "tcp://localhost", "tcp://host:", "udp://1.2.3.4:5"} {
		if _, err := ParseEndpoint(raw); !errors.Is(err, ErrInvalidEndpoint) {
			t.Fatalf("%q: expected ErrInvalidEndpoint, got %v", raw, err)
		}
	}
}

func TestValidateClientTransport(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	if err := cfg.ValidateClientTransport(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	cfg.ReadTimeout = -time.Second
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrInvalidTimeout) {
		t.Fatalf("expected ErrInvalidTimeout, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.MaxConnectAttempts = -1
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrInvalidMaxAttempts) {
		t.Fatalf("expected ErrInvalidMaxAttempts, got %v", err)
	}
	cfg = Config{}
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("expected ErrEndpointRequired, got %v", err)
	}
	if got := cfg.WithDefaults().Endpoint; got != DefaultSocket {
		t.Fatalf("unexpected default endpoint %q", got)
	}
}

func TestSubscriptionsLifecycle(t *testing.T) {
	testlog.Start(t)
	s := NewSubscriptions()
	now := time.Unix(1700000000, 0)
	s.Add("ike-updown", now)
	s.Add("log", now)
	if _, ok := s.MarkEvent("child-updown", now); ok {
		t.Fatalf("unregistered event should not be tracked")
	}
	item, ok := s.MarkEvent("log", now.Add(time.Second))
	if !ok {
		t.Fatalf("missing subscription")
	}
	if item.Events != 1 || !item.LastEventAt.Equal(now.Add(time.Second)) {
		t.Fatalf("unexpected subscription: %+v", item)
	}
	s.Add("log", now.Add(time.Hour))
	if got, _ := s.Get("log"); got.Events != 1 || !got.RegisteredAt.Equal(now) {
		t.Fatalf("re-add should keep state: %+v", got)
	}
	list := s.List()
	if len(list) != 2 || list[0].Event != "ike-updown" || list[1].Event != "log" {
		t.Fatalf("unexpected list: %+v", list)
	}
	s.Remove("log")
	if _, ok := s.Get("log"); ok {
		t.Fatalf("subscription should be removed")
	}
}
