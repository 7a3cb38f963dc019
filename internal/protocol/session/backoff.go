package session

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns the wait before retry attempt n (1-based). With Jitter the
// delay is scaled by a factor in [0.5, 1.5).
func (c BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	mult := math.Max(c.Multiplier, 1.0)
	delay := float64(c.InitialDelay)
	if attempt > 1 {
		delay *= math.Pow(mult, float64(attempt-1))
	}
	if c.MaxDelay > 0 {
		delay = math.Min(delay, float64(c.MaxDelay))
	}
	if c.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
