package gateway

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// #region options
// Options configures the transport shell around a Model.
type Options struct {
	// Timeout bounds one Refine call including retries. Zero means no extra bound.
	Timeout time.Duration
	Retry   RetryPolicy
}

// DefaultOptions returns a 60s budget with the default retry policy.
func DefaultOptions() Options {
	return Options{Timeout: 60 * time.Second, Retry: DefaultRetryPolicy()}
}

// #endregion options

// #region gateway
// Gateway sends prompts to a Model and parses the answer into a Candidate.
// It is stateless between calls and safe for concurrent use.
type Gateway struct {
	model  Model
	opts   Options
	logger *zap.Logger
}

// New wraps model. A nil logger disables logging.
func New(model Model, opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{model: model, opts: opts, logger: logger.Named("gateway")}
}

// ModelName reports the underlying model.
func (g *Gateway) ModelName() string {
	return g.model.Name()
}

// #endregion gateway

// #region refine
// Refine sends payload and returns the parsed candidate. Transport failures are retried
// with backoff; parse failures are returned at once. When ctx ends or the timeout expires
// the in-flight call is abandoned and a transport error is returned.
func (g *Gateway) Refine(ctx context.Context, payload string) (Candidate, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := g.opts.Retry.Delay(attempt - 1)
			g.logger.Debug("retrying model call",
				zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(lastErr))
			if err := sleep(ctx, delay); err != nil {
				return Candidate{}, &GatewayError{Kind: KindTransport, Err: errors.Join(lastErr, err)}
			}
		}

		completion, err := g.model.Generate(ctx, payload)
		if err != nil {
			lastErr = &GatewayError{Kind: KindTransport, Err: err}
			if ctx.Err() != nil || !g.opts.Retry.ShouldRetry(attempt+1, lastErr) {
				g.logger.Warn("model call failed",
					zap.String("model", g.model.Name()), zap.Int("attempts", attempt+1),
					zap.Duration("elapsed", time.Since(start)), zap.Error(err))
				return Candidate{}, lastErr
			}
			continue
		}

		cand, err := Parse(completion)
		if err != nil {
			g.logger.Warn("model response rejected",
				zap.String("model", g.model.Name()), zap.String("finish_reason", completion.FinishReason),
				zap.Int("thought_tokens", completion.ThoughtTokens), zap.Error(err))
			return Candidate{}, err
		}
		g.logger.Debug("model response parsed",
			zap.String("model", g.model.Name()), zap.Int("shape_keys", len(cand.Shape)),
			zap.Int("limb_keys", len(cand.Limb)), zap.Float64("confidence", cand.Confidence),
			zap.Duration("elapsed", time.Since(start)))
		return cand, nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// #endregion refine
