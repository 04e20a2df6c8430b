package session

import (
	"context"
	"math/rand"
	"time"
)

// jitterSpread is the fraction a jittered delay may deviate from its nominal value.
const jitterSpread = 0.25

// Delay returns the wait before reconnect attempt n (1-based). The nominal delay
// grows by Multiplier from InitialDelay and is capped at MaxDelay; jitter never
// pushes it past the cap.
func (b BackoffConfig) Delay(n int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.InitialDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			break
		}
	}
	if b.Jitter && rng != nil {
		d *= 1 - jitterSpread + 2*jitterSpread*rng.Float64()
	}
	if b.MaxDelay > 0 && d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}
	return time.Duration(d)
}

// sleepCtx waits for d or until ctx is done. It reports whether the full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
