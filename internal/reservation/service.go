package reservation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Service struct {
	coord  Coordinator
	reader Reader
	sink   Sink
	log    zerolog.Logger
	tracer trace.Tracer

	now   func() time.Time
	newID func() ReservationID

	notifyTimeout time.Duration
	notifying     sync.WaitGroup
}

// DefaultNotifyTimeout bounds one post-commit notification.
const DefaultNotifyTimeout = 10 * time.Second

// NewService wires the workflow. sink may be nil, in which case no
// notification is attempted.
func NewService(coord Coordinator, reader Reader, sink Sink, log zerolog.Logger) *Service {
	return &Service{
		coord:  coord,
		reader: reader,
		sink:   sink,
		log:    log.With().Str("component", "reservation").Logger(),
		tracer: otel.Tracer("github.com/ariefcatur/go-stock-reservations/internal/reservation"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() ReservationID { return ReservationID(uuid.NewString()) },

		notifyTimeout: DefaultNotifyTimeout,
	}
}

// Wait blocks until every notification started so far has finished.
func (s *Service) Wait() { s.notifying.Wait() }
