package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	ScoreMin = 1
	ScoreMax = 10

	// FallbackScore is the neutral opinion substituted when the service
	// fails or replies with something other than a digit in range.
	FallbackScore = 5

	IntervalDefault = time.Second
)

// Metrics is the numeric billing summary described to the annotation service.
type Metrics struct {
	SubscriptionAgeDays int
	PlanAmount          float64
	TotalInvoices       int
	PaymentFailureRate  float64
	TotalPaid           float64
}

// Annotator produces a churn risk opinion in [ScoreMin, ScoreMax] for one
// customer. Implementations must treat service failures as non-fatal and
// return FallbackScore; only context cancellation may surface as an error.
type Annotator interface {
	Annotate(ctx context.Context, m Metrics) (int, error)
}

// GroqAnnotator asks a chat-completions model for the risk opinion, pacing
// calls through a token bucket to stay under the provider's rate limit.
type GroqAnnotator struct {
	client  *Client
	limiter *rate.Limiter
}

func NewGroqAnnotator(client *Client, interval time.Duration) *GroqAnnotator {
	if interval <= 0 {
		interval = IntervalDefault
	}
	return &GroqAnnotator{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (a *GroqAnnotator) Annotate(ctx context.Context, m Metrics) (int, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("annotation pacing interrupted: %w", err)
	}

	reply, err := a.client.Complete(ctx, riskPrompt(m))
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("annotation canceled: %w", ctx.Err())
		}
		slog.Warn("annotation call failed, using fallback score",
			"fallback", FallbackScore, "error", err)
		return FallbackScore, nil
	}

	score, err := ParseScore(reply)
	if err != nil {
		slog.Warn("malformed annotation reply, using fallback score",
			"reply", reply, "fallback", FallbackScore, "error", err)
		return FallbackScore, nil
	}

	return score, nil
}

func riskPrompt(m Metrics) string {
	return fmt.Sprintf(`You are a customer churn analyst. Based on the billing data below,
give a churn risk score from 1 to 10.
1 = very unlikely to churn, 10 = very likely to churn.

Customer data:
- Subscription age: %d days
- Plan amount: Rs.%.0f per month
- Total invoices: %d
- Payment failure rate: %.0f%%
- Total amount paid: Rs.%.0f

Reply with ONLY a single number between 1 and 10. Nothing else.`,
		m.SubscriptionAgeDays,
		m.PlanAmount,
		m.TotalInvoices,
		m.PaymentFailureRate*100,
		m.TotalPaid,
	)
}

// ParseScore parses a service reply as an integer risk score in range.
func ParseScore(reply string) (int, error) {
	score, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return 0, fmt.Errorf("reply is not an integer: %q", reply)
	}
	if score < ScoreMin || score > ScoreMax {
		return 0, fmt.Errorf("score %d outside [%d,%d]", score, ScoreMin, ScoreMax)
	}
	return score, nil
}
