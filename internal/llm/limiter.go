package llm

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// RateLimitedEmbedder wraps an EmbeddingGenerator with a token-bucket rate
// limiter and exponential-backoff retry, so a single slow or rate-limited
// backend cannot starve the embedding cache's singleflight group (spec.md
// 4.3: "the generator is rate limited and retried with backoff").
type RateLimitedEmbedder struct {
	inner   EmbeddingGenerator
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner with a limiter allowing rps requests
// per second with a burst size of one (no requests beyond the steady rate).
func NewRateLimitedEmbedder(inner EmbeddingGenerator, rps float64) *RateLimitedEmbedder {
	if rps <= 0 {
		rps = 5
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (e *RateLimitedEmbedder) GetModel() string { return e.inner.GetModel() }

// Embed waits for limiter admission, then retries the call through an
// exponential backoff schedule bounded by ctx's deadline.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var vec []float32
	op := func() error {
		v, err := e.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return vec, nil
}

var _ EmbeddingGenerator = (*RateLimitedEmbedder)(nil)
