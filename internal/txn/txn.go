// Package txn runs units of work in retryable atomic transactions.
//
// A unit of work is re-executed from scratch, with fresh reads, whenever the
// backend reports a write conflict or an infrastructure error. Domain errors
// (see apperr.IsDomain) abort immediately and are returned unchanged. Once the
// attempt budget is spent the last error surfaces as apperr.KindTransactionFailure.
package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-stock-reservations/internal/apperr"
	"github.com/ariefcatur/go-stock-reservations/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrConflict is reported by a Backend when a commit lost a write-write race.
var ErrConflict = errors.New("txn: write conflict")

// Backend opens one transaction per Attempt, hands fn a transactional view,
// commits when fn returns nil and rolls back otherwise.
type Backend[V any] interface {
	Attempt(ctx context.Context, fn func(ctx context.Context, view V) error) error
}

type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 10 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 500 * time.Millisecond
	}
	return o
}

type Coordinator[V any] struct {
	backend Backend[V]
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Txn
	tracer  trace.Tracer
}

// New builds a coordinator. m may be nil.
func New[V any](backend Backend[V], opts Options, log zerolog.Logger, m *metrics.Txn) *Coordinator[V] {
	return &Coordinator[V]{
		backend: backend,
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", "txn").Logger(),
		metrics: m,
		tracer:  otel.Tracer("github.com/ariefcatur/go-stock-reservations/internal/txn"),
	}
}

func (c *Coordinator[V]) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1)), ctx)
}

// Run executes fn atomically. fn must not have side effects outside the view:
// it may run several times.
func (c *Coordinator[V]) Run(ctx context.Context, fn func(ctx context.Context, view V) error) error {
	ctx, span := c.tracer.Start(ctx, "txn.run")
	defer span.End()
	start := time.Now()
	defer func() { c.metrics.ObserveDuration(time.Since(start)) }()

	attempts := 0
	op := func() error {
		attempts++
		err := c.backend.Attempt(ctx, fn)
		switch {
		case err == nil:
			c.metrics.Observe("committed")
			return nil
		case apperr.IsDomain(err):
			c.metrics.Observe("aborted")
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			c.metrics.Observe("error")
			return backoff.Permanent(err)
		case errors.Is(err, ErrConflict):
			c.metrics.Observe("conflict")
			c.log.Debug().Int("attempt", attempts).Err(err).Msg("write conflict, retrying")
		default:
			c.metrics.Observe("error")
			c.log.Warn().Int("attempt", attempts).Err(err).Msg("transaction attempt failed")
		}
		return err
	}

	err := backoff.Retry(op, c.newBackOff(ctx))
	span.SetAttributes(attribute.Int("txn.attempts", attempts))
	if err == nil {
		span.SetStatus(codes.Ok, "committed")
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if apperr.IsDomain(err) {
		return err
	}
	c.log.Error().Int("attempts", attempts).Err(err).Msg("transaction failed")
	return apperr.TransactionFailure(fmt.Errorf("after %d attempt(s): %w", attempts, err))
}

// Run is the value-returning form of Coordinator.Run. Only the result of the
// committed attempt is returned.
func Run[V, T any](ctx context.Context, c *Coordinator[V], fn func(ctx context.Context, view V) (T, error)) (T, error) {
	var out T
	err := c.Run(ctx, func(ctx context.Context, view V) error {
		var zero T
		out = zero
		res, err := fn(ctx, view)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
