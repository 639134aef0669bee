package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-stock-reservations/internal/config"
	kafkax "github.com/ariefcatur/go-stock-reservations/internal/kafka"
	"github.com/ariefcatur/go-stock-reservations/internal/logging"
	"github.com/ariefcatur/go-stock-reservations/internal/notify"
	"github.com/ariefcatur/go-stock-reservations/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("reservation-notifier", "info")
		boot.Fatal().Err(err).Msg("config")
	}
	service := cfg.ServiceName + "-notifier"
	log := logging.New(service, cfg.LogLevel)

	if err := run(cfg, service, log); err != nil {
		log.Error().Err(err).Msg("notifier exit")
		os.Exit(1)
	}
	log.Info().Msg("notifier stopped")
}

func run(cfg config.Config, service string, log zerolog.Logger) error {
	if len(cfg.KafkaBrokers) == 0 || cfg.PushEndpoint == "" {
		return errors.New("KAFKA_BROKERS and PUSH_ENDPOINT are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dlq := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicReservationCreatedDLQ, 256, log)
	dlq.Start(context.Background())
	defer dlq.WaitClosed()
	defer dlq.Close()

	n := &notify.Notifier{
		Push:        notify.NewPushClient(cfg.PushEndpoint, cfg.PushTimeout, log),
		DeadLetter:  dlq,
		ServiceName: service,
		Log:         log,
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		n.Redis = rdb
	} else {
		log.Warn().Msg("REDIS_ADDR not set, duplicate events will be delivered again")
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, notify.TopicReservationCreated, cfg.NotifierWorkers, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("group", cfg.NotifierGroup).
			Str("topic", notify.TopicReservationCreated).
			Int("workers", cfg.NotifierWorkers).
			Msg("notifier consumer started")
		return cons.Start(ctx, n.HandleReservationCreated)
	})
	return g.Wait()
}
