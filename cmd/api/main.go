package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-stock-reservations/internal/config"
	"github.com/ariefcatur/go-stock-reservations/internal/httpx"
	kafkax "github.com/ariefcatur/go-stock-reservations/internal/kafka"
	"github.com/ariefcatur/go-stock-reservations/internal/logging"
	"github.com/ariefcatur/go-stock-reservations/internal/memstore"
	"github.com/ariefcatur/go-stock-reservations/internal/metrics"
	"github.com/ariefcatur/go-stock-reservations/internal/notify"
	"github.com/ariefcatur/go-stock-reservations/internal/postgres"
	"github.com/ariefcatur/go-stock-reservations/internal/redisx"
	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
	"github.com/ariefcatur/go-stock-reservations/internal/txn"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

type backend interface {
	txn.Backend[reservation.Tx]
	reservation.Reader
}

func main() {
	seedDemo := flag.Bool("seed", false, "insert demo store, items, user and cart on startup")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("reservation-api", "info")
		boot.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.ServiceName, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Store backend
	var store backend
	switch cfg.StoreBackend {
	case config.BackendMemory:
		mem := memstore.New()
		if *seedDemo {
			seedMemory(mem)
		}
		store = mem
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("db migrate")
		}
		pg := &postgres.Store{DB: db}
		if *seedDemo {
			if err := seedPostgres(ctx, pg); err != nil {
				log.Fatal().Err(err).Msg("seed")
			}
		}
		store = pg
	}
	log.Info().Str("backend", cfg.StoreBackend).Bool("seeded", *seedDemo).Msg("store ready")

	// Redis read cache
	var reader reservation.Reader = store
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		reader = redisx.NewStoreCache(store, rdb, log)
	}

	// Notification sink: Kafka when brokers are set, direct push otherwise
	var (
		sink reservation.Sink
		prod *kafkax.Producer
	)
	switch {
	case len(cfg.KafkaBrokers) > 0:
		prod = kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicReservationCreated, 1024, log)
		prod.Start(ctx)
		sink = notify.NewKafkaSink(prod, cfg.ServiceName, log)
	case cfg.PushEndpoint != "":
		sink = notify.NewPushClient(cfg.PushEndpoint, cfg.PushTimeout, log)
	default:
		log.Warn().Msg("no KAFKA_BROKERS or PUSH_ENDPOINT, store notifications disabled")
	}

	coord := txn.New[reservation.Tx](store, txn.Options{
		MaxAttempts:    cfg.TxnMaxAttempts,
		InitialBackoff: cfg.TxnBackoffInitial,
	}, log, metrics.NewTxn(reg))
	svc := reservation.NewService(coord, reader, sink, log)

	router := httpx.NewRouter(log, metrics.NewServer(reg, cfg.ServiceName), reg)
	(&httpx.ReservationsHandler{Svc: svc, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdown(srv, svc, prod, cancel, log)
}

func shutdown(srv *http.Server, svc *reservation.Service, prod *kafkax.Producer, cancel context.CancelFunc, log zerolog.Logger) {
	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// in-flight notifications publish before the producer closes
	svc.Wait()
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	cancel()
}
