package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-stock-reservations/internal/kafka"
	"github.com/ariefcatur/go-stock-reservations/internal/redisx"
	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

var ErrDeliveryFailed = errors.New("push delivery failed")

const (
	TopicReservationCreatedDLQ = TopicReservationCreated + ".dlq"

	defaultDeliveryAttempts = 5
	defaultDeliveryBackoff  = 200 * time.Millisecond
)

// Notifier consumes ReservationCreated events and pushes them to devices.
//
// The consumer commits past a failed offset as soon as a later message on the
// partition succeeds, so delivery is retried here. An event that still fails
// after DeliveryAttempts goes to DeadLetter (when set) and is acknowledged.
type Notifier struct {
	Redis       redis.Cmdable
	Push        reservation.Sink
	DeadLetter  publisher
	ServiceName string
	Log         zerolog.Logger

	DeliveryAttempts int
	DeliveryBackoff  time.Duration
}

// HandleReservationCreated is installed as the consumer handler.
func (n *Notifier) HandleReservationCreated(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// a message that never decodes would block the partition
		n.Log.Error().Err(err).Int64("offset", m.Offset).Msg("dropping undecodable event")
		return nil
	}
	if env.EventType != EventReservationCreated {
		return nil
	}
	log := n.Log.With().Str("event_id", env.EventID).Str("trace_id", env.TraceID).Logger()

	dkey := fmt.Sprintf(redisx.KeyDedup, n.ServiceName, env.EventID)
	if n.Redis != nil {
		seen, err := redisx.Exists(ctx, n.Redis, dkey)
		if err != nil {
			log.Warn().Err(err).Msg("dedup lookup failed")
		}
		if seen {
			log.Debug().Msg("duplicate event skipped")
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[ReservationCreatedPayload](env.Payload)
	if err != nil {
		log.Error().Err(err).Msg("dropping event with bad payload")
		return nil
	}

	if len(p.Tokens) > 0 {
		attempts, err := n.deliver(ctx, p.Tokens)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			log.Error().Err(err).Int("attempts", attempts).Msg("giving up on reservation notification")
			n.deadLetter(log, m)
		}
	}

	if n.Redis != nil {
		if _, err := redisx.MarkOnce(ctx, n.Redis, dkey, redisx.TTLDedup); err != nil {
			log.Warn().Err(err).Msg("dedup mark failed")
		}
	}
	log.Info().Int("tokens", len(p.Tokens)).Msg("reservation notification handled")
	return nil
}

func (n *Notifier) deliver(ctx context.Context, tokens []string) (int, error) {
	maxAttempts := n.DeliveryAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultDeliveryAttempts
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = n.DeliveryBackoff
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = defaultDeliveryBackoff
	}
	eb.MaxElapsedTime = 0

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		if n.Push.SendNewReservationMessage(ctx, tokens) {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		n.Log.Warn().Int("attempt", attempts).Msg("push delivery failed, retrying")
		return ErrDeliveryFailed
	}, backoff.WithContext(backoff.WithMaxRetries(eb, uint64(maxAttempts-1)), ctx))
	return attempts, err
}

func (n *Notifier) deadLetter(log zerolog.Logger, m kafkago.Message) {
	if n.DeadLetter == nil {
		return
	}
	if !n.DeadLetter.TryPublish(m.Key, m.Value, m.Headers...) {
		log.Error().Msg("dead letter not enqueued, event lost")
	}
}
