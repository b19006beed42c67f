package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// rateLimited decorates a Client with a token-bucket admission limiter.
// The upstream endpoint is rate limited; waiting here keeps concurrent
// batch workers from burning their single attempt on 429 responses.
type rateLimited struct {
	inner   Client
	limiter *rate.Limiter
}

// RateLimited wraps c so that calls proceed at most perSec per second with
// the given burst. perSec <= 0 disables limiting.
func RateLimited(c Client, perSec float64, burst int) Client {
	if perSec <= 0 {
		return c
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{inner: c, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (r *rateLimited) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "llm: rate limiter wait")
	}
	return r.inner.Complete(ctx, req)
}
