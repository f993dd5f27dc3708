package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
)

// Step is one unit of a fulfillment saga. Critical steps abort the saga on
// failure; non-critical steps log, run their OnError hook and let the saga
// continue. Whether a step must succeed is a declared property here, not an
// implicit try/catch at the call site.
type Step struct {
	Name     string
	Critical bool
	Run      func(context.Context) error
	// OnError runs after a non-critical step fails, typically to queue a
	// reconciliation job. Ignored for critical steps.
	OnError func(context.Context, error)
}

// MetricsPort records saga step outcomes.
type MetricsPort interface {
	SagaStep(saga, step, outcome string)
}

// runSaga executes steps strictly in order. Later steps observe the effects
// of earlier ones; every step is expected to be individually idempotent so
// the whole saga is safe to re-invoke after a partial failure.
func runSaga(ctx context.Context, logger *slog.Logger, metrics MetricsPort, saga string, steps []Step) error {
	for _, step := range steps {
		err := step.Run(ctx)
		if err == nil {
			observe(metrics, saga, step.Name, "ok")
			continue
		}
		if step.Critical {
			observe(metrics, saga, step.Name, "failed")
			return fmt.Errorf("fulfillment: %s/%s: %w", saga, step.Name, err)
		}
		observe(metrics, saga, step.Name, "deferred")
		logger.Warn("non-critical saga step failed",
			slog.String("saga", saga),
			slog.String("step", step.Name),
			slog.Any("error", err))
		if step.OnError != nil {
			step.OnError(ctx, err)
		}
	}
	return nil
}

func observe(metrics MetricsPort, saga, step, outcome string) {
	if metrics != nil {
		metrics.SagaStep(saga, step, outcome)
	}
}
