package utils

import "math"

// PercentOf returns percent% of amount in minor currency units, rounded to
// the nearest unit (half away from zero).
func PercentOf(amount int64, percent float64) int64 {
	return int64(math.Round(float64(amount) * percent / 100))
}

// ShareOf returns amount scaled by ratio, rounded to the nearest unit.
// Used for prorating bonus clawbacks against returned merchandise value.
func ShareOf(amount int64, ratio float64) int64 {
	return int64(math.Round(float64(amount) * ratio))
}

// MaxInt64 returns the larger of a and b.
func MaxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
