package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rg/reactor/internal/accounts"
	"github.com/rg/reactor/internal/reaction"
)

// ErrCancelled is returned when the dispatch context ends before every
// account finished. No partial outcome is returned in that case.
var ErrCancelled = errors.New("dispatch cancelled")

// Redactor scrubs secrets out of text before it is logged.
type Redactor interface {
	Sanitize(text string) string
}

type Dispatcher struct {
	pool           *accounts.Pool
	timeout        time.Duration
	maxConcurrency int
	redactor       Redactor
}

type Option func(*Dispatcher)

// WithTimeout bounds a whole fan-out. Zero means no bound beyond the
// caller's context.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithMaxConcurrency limits in-flight account calls per dispatch. Zero
// runs one goroutine per account.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) { d.maxConcurrency = n }
}

func WithRedactor(r Redactor) Option {
	return func(d *Dispatcher) { d.redactor = r }
}

func New(pool *accounts.Pool, opts ...Option) *Dispatcher {
	d := &Dispatcher{pool: pool}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch asks every account in the pool to set req.Emoji on req.Target.
// Each account gets exactly one attempt; a failing account only affects its
// own Result. The returned Outcome lists results in pool order.
func (d *Dispatcher) Dispatch(ctx context.Context, req reaction.Request) (*reaction.Outcome, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	accs := d.pool.Accounts()
	outcome := &reaction.Outcome{
		ID:      uuid.NewString(),
		Request: req,
		Results: make([]reaction.Result, len(accs)),
	}

	start := time.Now()
	slog.Info("Dispatching reaction",
		"dispatch_id", outcome.ID,
		"target", req.Target.String(),
		"emoji", req.Emoji,
		"accounts", len(accs))

	var g errgroup.Group
	if d.maxConcurrency > 0 {
		g.SetLimit(d.maxConcurrency)
	}
	for i, acc := range accs {
		i, acc := i, acc
		g.Go(func() error {
			outcome.Results[i] = d.apply(ctx, outcome.ID, acc, req)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		slog.Warn("Dispatch cancelled", "dispatch_id", outcome.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	failed := outcome.Failures()
	attrs := []any{
		"dispatch_id", outcome.ID,
		"applied", outcome.SuccessCount(),
		"failed", len(failed),
		"duration", time.Since(start),
	}
	if len(failed) > 0 {
		kinds := make([]string, len(failed))
		for i, res := range failed {
			kinds[i] = res.Account + ":" + res.Failure.Kind.String()
		}
		slog.Warn("Dispatch finished with failures", append(attrs, "failures", kinds)...)
	} else {
		slog.Info("Dispatch finished", attrs...)
	}

	return outcome, nil
}

func (d *Dispatcher) apply(ctx context.Context, dispatchID string, acc *accounts.Account, req reaction.Request) reaction.Result {
	res := reaction.Result{Account: acc.Name()}

	if err := acc.SetReaction(ctx, req.Target, req.Emoji); err != nil {
		res.Failure = reaction.AsFailure(err)
		slog.Warn("Account failed to react",
			"dispatch_id", dispatchID,
			"account", res.Account,
			"kind", res.Failure.Kind.String(),
			"error", d.redact(res.Failure.Error()))
	}

	return res
}

func (d *Dispatcher) redact(text string) string {
	if d.redactor == nil {
		return text
	}
	return d.redactor.Sanitize(text)
}
