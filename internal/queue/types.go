package queue

import (
	"math"
	"math/rand"
	"time"
)

// calculateBackoff calculates the backoff duration for a retry.
// Exponential with ±20% jitter, base 5s, capped at 1 hour.
func calculateBackoff(retry int) time.Duration {
	base := 5.0
	max := 3600.0

	seconds := math.Min(max, base*math.Pow(2, float64(retry)))

	jitter := seconds * 0.2
	seconds = seconds - jitter + (rand.Float64() * jitter * 2)

	return time.Duration(seconds) * time.Second
}
