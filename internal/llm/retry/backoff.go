package retry

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
)

// backoffFor returns the wait before the attempt after a failed one.
// Retry-After guidance from the provider wins over the exponential schedule.
func (r *retryMiddleware) backoffFor(attempt int, err error) time.Duration {
	var guided AfterProvider
	if errors.As(err, &guided) {
		if d := guided.GetRetryAfter(); d > 0 {
			return d
		}
	}
	return ExponentialBackoff(attempt, r.config)
}

// ExponentialBackoff returns InitialInterval * Multiplier^(attempt-1), capped
// at MaxInterval. With UseJitter the result is drawn uniformly from [0, cap].
func ExponentialBackoff(attempt int, cfg configuration.RetryConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}
	base := cfg.InitialInterval
	if base <= 0 {
		base = time.Millisecond
	}

	d := float64(base) * math.Pow(max(cfg.Multiplier, 1.0), float64(attempt-1))
	if cfg.MaxInterval > 0 {
		d = min(d, float64(cfg.MaxInterval))
	}
	d = min(d, float64(math.MaxInt64/2))

	backoff := time.Duration(d)
	if cfg.UseJitter {
		return rand.N(backoff + 1) // #nosec G404 -- jitter needs no cryptographic source
	}
	return backoff
}
