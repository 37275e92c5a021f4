package ratelimit

import (
	"math/rand/v2"
	"time"
)

// ResolveConcurrency bounds parallel yt-dlp invocations when adding many
// URLs at once.
const ResolveConcurrency = 4

// Jitter returns a random duration in [from, to).
func Jitter(from, to time.Duration) time.Duration {
	if to <= from {
		return from
	}
	return from + rand.N(to-from) //nolint:gosec
}

// ResolveRetryDelay is the pause between failed resolve attempts.
func ResolveRetryDelay() time.Duration {
	return Jitter(time.Second, 4*time.Second)
}
