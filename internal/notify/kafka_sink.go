package notify

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-stock-reservations/internal/kafka"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

type publisher interface {
	TryPublish(key, value []byte, headers ...kafkago.Header) bool
}

// KafkaSink hands the notification to the notifier service through Kafka.
// Delivery to devices happens there.
type KafkaSink struct {
	pub     publisher
	service string
	log     zerolog.Logger
	now     func() time.Time
}

func NewKafkaSink(pub publisher, service string, log zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		pub:     pub,
		service: service,
		log:     log.With().Str("component", "kafka_sink").Logger(),
		now:     time.Now,
	}
}

// SendNewReservationMessage reports whether the event was enqueued.
func (s *KafkaSink) SendNewReservationMessage(ctx context.Context, tokens []string) bool {
	ev := Envelope{
		EventID:      uuid.NewString(),
		EventType:    EventReservationCreated,
		EventVersion: 1,
		OccurredAt:   s.now().UTC(),
		Producer:     s.service,
		Payload:      kafkax.MustMarshal(ReservationCreatedPayload{Tokens: tokens}),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}

	ok := s.pub.TryPublish([]byte(ev.EventID), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(EventReservationCreated, ev.EventVersion)...)
	if !ok {
		s.log.Warn().Str("event_id", ev.EventID).Msg("reservation notification not enqueued")
	}
	return ok
}
