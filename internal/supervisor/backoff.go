package supervisor

import (
	"sync/atomic"
	"time"
)

// backoff tracks the reconnect delay across repeated dial failures, shaped
// after client2/connection.go's retryDelay/maxRetryDelay pattern but growing
// exponentially: start at a configured base, double on every attempt (from
// increment when the current delay is zero), cap at a configured maximum,
// and reset to base the instant bytes are successfully read from a session.
type backoff struct {
	base      time.Duration
	increment time.Duration
	max       time.Duration
	current   int64 // atomic time.Duration
}

func newBackoff(base, increment, max time.Duration) *backoff {
	return &backoff{base: base, increment: increment, max: max, current: int64(base)}
}

// Next returns the delay to wait before the next dial attempt, then doubles
// the delay for the attempt after that.
func (b *backoff) Next() time.Duration {
	d := time.Duration(atomic.LoadInt64(&b.current))
	grown := int64(2 * d)
	if d <= 0 {
		grown = int64(b.increment)
	}
	if grown > int64(b.max) {
		grown = int64(b.max)
	}
	atomic.StoreInt64(&b.current, grown)
	return d
}

// Reset restores the delay to its base value, called once a session proves
// itself by reading at least one byte.
func (b *backoff) Reset() {
	atomic.StoreInt64(&b.current, int64(b.base))
}
