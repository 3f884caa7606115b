package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/alert"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/hook"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

// Thresholds are the alert trigger levels the evaluator checks on
// every pass.
type Thresholds struct {
	// DeadLetterWarning fires a warning when more than this many chunks
	// are dead-lettered.
	DeadLetterWarning int64
	// DeadLetterCritical escalates to critical above this count.
	DeadLetterCritical int64
	// StalledWarning fires a warning when more than this many chunks
	// have been processing longer than the stall threshold.
	StalledWarning int64
}

// DefaultThresholds returns the standard trigger levels.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DeadLetterWarning:  10,
		DeadLetterCritical: 20,
		StalledWarning:     5,
	}
}

// Evaluator compares current state against thresholds and fires
// alerts. Alerts are level-triggered: each pass evaluates the current
// counts, and the debounce window keeps a persistently bad state from
// paging every tick.
type Evaluator struct {
	chunks   chunk.Store
	alerts   alert.Store
	notifier alert.Notifier
	hooks    *hook.Registry
	logger   *slog.Logger

	thresholds     Thresholds
	debounce       time.Duration
	stallThreshold time.Duration
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithThresholds overrides the alert trigger levels.
func WithThresholds(t Thresholds) EvaluatorOption {
	return func(e *Evaluator) { e.thresholds = t }
}

// WithDebounce sets the minimum interval between identical alerts.
func WithDebounce(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) { e.debounce = d }
}

// WithStallThreshold sets how old a processing chunk must be to count
// toward the stalled alert.
func WithStallThreshold(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) { e.stallThreshold = d }
}

// WithNotifier sets the external notifier. Defaults to a LogNotifier.
func WithNotifier(n alert.Notifier) EvaluatorOption {
	return func(e *Evaluator) { e.notifier = n }
}

// WithLogger sets the evaluator's logger.
func WithLogger(logger *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = logger }
}

// NewEvaluator creates an Evaluator. hooks may be nil.
func NewEvaluator(chunks chunk.Store, alerts alert.Store, hooks *hook.Registry, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		chunks:         chunks,
		alerts:         alerts,
		hooks:          hooks,
		logger:         slog.Default(),
		thresholds:     DefaultThresholds(),
		debounce:       15 * time.Minute,
		stallThreshold: 60 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = alert.NewLogNotifier(e.logger)
	}
	return e
}

// Evaluate runs one threshold pass and returns the alerts fired.
func (e *Evaluator) Evaluate(ctx context.Context) ([]*alert.Alert, error) {
	counts, err := e.chunks.CountChunks(ctx, id.Nil)
	if err != nil {
		return nil, err
	}

	stalled, err := e.chunks.ListStalled(ctx, e.stallThreshold)
	if err != nil {
		return nil, err
	}

	recent, err := e.alerts.ListAlertsSince(ctx, time.Now().UTC().Add(-e.debounce))
	if err != nil {
		return nil, err
	}

	var fired []*alert.Alert

	// Dead-letter volume. Critical supersedes warning; only one of the
	// two fires per pass.
	switch {
	case counts.DeadLettered > e.thresholds.DeadLetterCritical:
		a := e.fire(ctx, recent, alert.SeverityCritical, "dead-letter",
			fmt.Sprintf("%d chunks dead-lettered (critical threshold %d)",
				counts.DeadLettered, e.thresholds.DeadLetterCritical),
			map[string]int64{"dead_lettered": counts.DeadLettered})
		if a != nil {
			fired = append(fired, a)
		}
	case counts.DeadLettered > e.thresholds.DeadLetterWarning:
		a := e.fire(ctx, recent, alert.SeverityWarning, "dead-letter",
			fmt.Sprintf("%d chunks dead-lettered (warning threshold %d)",
				counts.DeadLettered, e.thresholds.DeadLetterWarning),
			map[string]int64{"dead_lettered": counts.DeadLettered})
		if a != nil {
			fired = append(fired, a)
		}
	}

	if n := int64(len(stalled)); n > e.thresholds.StalledWarning {
		a := e.fire(ctx, recent, alert.SeverityWarning, "stall",
			fmt.Sprintf("%d chunks stalled beyond %s", n, e.stallThreshold),
			map[string]int64{"stalled": n})
		if a != nil {
			fired = append(fired, a)
		}
	}

	return fired, nil
}

// fire persists and delivers one alert unless an identical
// component+severity alert fired within the debounce window.
func (e *Evaluator) fire(ctx context.Context, recent []*alert.Alert, sev alert.Severity, component, msg string, meta map[string]int64) *alert.Alert {
	for _, r := range recent {
		if r.Component == component && r.Severity == sev {
			return nil
		}
	}

	a := &alert.Alert{
		Entity:    batch.NewEntity(),
		ID:        id.NewAlertID(),
		Severity:  sev,
		Component: component,
		Message:   msg,
		Metadata:  meta,
	}

	if err := e.alerts.CreateAlert(ctx, a); err != nil {
		e.logger.Error("persist alert failed",
			slog.String("component", component),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := e.notifier.Notify(ctx, a); err != nil {
		// The alert row is the source of truth; delivery failures only log.
		e.logger.Error("alert notify failed",
			slog.String("alert_id", a.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if e.hooks != nil {
		e.hooks.EmitAlertFired(ctx, a)
	}
	return a
}
