package ai

import (
	"context"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai/transport"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"golang.org/x/time/rate"
)

// RateLimitedProvider spaces out calls to an upstream provider.
type RateLimitedProvider struct {
	next    models.VisionProvider
	limiter *rate.Limiter
}

// RateLimited wraps p so that at most rps calls per second (with the given
// burst) are started. A non-positive rps disables limiting.
func RateLimited(p models.VisionProvider, rps float64, burst int) models.VisionProvider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{next: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimitedProvider) Name() string { return r.next.Name() }

func (r *RateLimitedProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return models.Completion{}, transport.Classify(err)
	}
	return r.next.Complete(ctx, req)
}
