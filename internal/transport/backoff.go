package transport

import (
	"math/rand/v2"
	"time"

	"github.com/sethvargo/go-retry"
)

// Reconnect schedule knobs.
const (
	ReconnectBase        = 2 * time.Second
	ReconnectMax         = 60 * time.Second
	MaxReconnectAttempts = 10
	jitterMax            = time.Second
)

// delayFor returns the deterministic part of the reconnect delay for
// 1-based attempt n: base doubled per attempt, capped at max.
func delayFor(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
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

// reconnectBackoff yields the reconnect schedule: capped exponential delays
// with a uniform [0, 1s) additive jitter, stopping after the attempt cap.
func reconnectBackoff() retry.Backoff {
	attempt := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return delayFor(ReconnectBase, ReconnectMax, attempt) + jitter(), false
	})
	return retry.WithMaxRetries(MaxReconnectAttempts, b)
}

func jitter() time.Duration {
	return time.Duration(rand.Int64N(int64(jitterMax)))
}
