package gemini

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited spaces out calls to the wrapped generator. A call waits for a
// token and then runs exactly once.
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

func WithRateLimit(next Generator, rps float64, burst int) Generator {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Generate(ctx context.Context, req Request) (Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}
	return r.next.Generate(ctx, req)
}
