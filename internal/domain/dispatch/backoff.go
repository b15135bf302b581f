package dispatch

import "time"

// Backoff returns the retry delay for the given attempt number (1-based):
// base doubled per prior failure, capped at max.
func Backoff(retryCount int, base, max time.Duration) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	d := base
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
