package session

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns the wait before connect attempt+1, where attempt is the
// 1-based number of the attempt that just failed. With jitter the result is
// scaled into [0.5, 1.5) of the nominal delay; a nil rng uses the midpoint.
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := math.Max(b.Multiplier, 1.0)
	nominal := float64(b.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if b.MaxDelay > 0 {
		nominal = math.Min(nominal, float64(b.MaxDelay))
	}
	if !b.Jitter {
		return time.Duration(nominal)
	}
	scale := 1.0
	if rng != nil {
		scale = 0.5 + rng.Float64()
	}
	return time.Duration(nominal * scale)
}
