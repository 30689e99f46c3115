// cmd/portal/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"memberportal/internal/access"
	"memberportal/internal/application"
	"memberportal/internal/clients"
	"memberportal/internal/config"
	"memberportal/internal/events"
	"memberportal/internal/eventstore"
	"memberportal/internal/httpx"
	"memberportal/internal/logger"
	"memberportal/internal/navigation"
	"memberportal/internal/notify"
	"memberportal/internal/retry"
	"memberportal/internal/review"
	"memberportal/internal/session"
	"memberportal/internal/telemetry"
	"memberportal/internal/volunteer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stdout"})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "memberportal",
		Endpoint:    cfg.OTelEndpoint,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	st, closeDB, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	notifier, closeNotifier, err := openNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, log, st, notifier),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("portal listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// stores are the persistence backends the services run over.
type stores struct {
	apps   application.Repository
	events events.Store
	hours  volunteer.Store
}

func memoryStores() stores {
	return stores{
		apps:   application.NewMemoryStore(),
		events: events.NewMemoryStore(),
		hours:  volunteer.NewMemoryStore(),
	}
}

// newRouter wires the services over the given stores and mounts their handlers.
func newRouter(cfg config.Config, log *zap.Logger, st stores, notifier notify.Notifier) http.Handler {
	readRetry := retry.Policy{MaxTries: cfg.ReadRetryMaxTries, InitialInterval: cfg.ReadRetryInitialInterval, MaxInterval: time.Second}
	httpClient := &http.Client{Timeout: cfg.ClientTimeout}
	profiles := clients.NewProfileClient(cfg.ProfileServiceURL, httpClient, readRetry)
	documents := clients.NewDocumentClient(cfg.DocumentServiceURL, httpClient)

	evaluator := access.NewEvaluator()
	machine := application.NewMachine(st.apps)
	reviews := review.NewService(machine, st.apps, evaluator, documents, notifier, log.Named("review"), review.WithReadRetry(readRetry))
	eventService := events.NewService(st.events, evaluator, log.Named("events"))
	hours := volunteer.NewService(st.hours, evaluator, log.Named("volunteer"))
	resolver := navigation.NewResolver(navigation.DefaultRegistry(), evaluator, log.Named("navigation"),
		navigation.WithSource(navigation.ResourceApplication, review.NavigationSource(st.apps)),
		navigation.WithSource(navigation.ResourceEvent, events.NavigationSource(st.events)),
	)
	sessions := session.NewManager(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionTTL, profiles, log.Named("session"),
		session.WithNotFound(func(err error) bool { return errors.Is(err, clients.ErrProfileNotFound) }),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httpx.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		r.Use(sessions.Middleware)
		r.Mount("/navigation", navigation.NewHandler(resolver, log.Named("navigation")).Routes())
		r.Mount("/applications", review.NewHandler(reviews, log.Named("review")).Routes())
		r.Mount("/events", events.NewHandler(eventService, log.Named("events")).Routes())
		r.Mount("/volunteer", volunteer.NewHandler(hours, log.Named("volunteer")).Routes())
	})
	return r
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory stores; data is lost on restart")
		return memoryStores(), func() {}, nil
	}

	db, err := sqlx.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return stores{}, nil, fmt.Errorf("ping database: %w", err)
	}
	for _, schema := range []string{eventstore.Schema, application.Schema, events.Schema, volunteer.Schema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return stores{}, nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	st := stores{
		apps:   application.NewPostgresStore(db),
		events: events.NewPostgresStore(db),
		hours:  volunteer.NewPostgresStore(db),
	}
	return st, func() { db.Close() }, nil
}

func openNotifier(cfg config.Config, log *zap.Logger) (notify.Notifier, func(), error) {
	if cfg.AMQPURL == "" {
		return notify.NewLogNotifier(log.Named("notify")), func() {}, nil
	}

	mq, err := notify.DialRabbitMQ(cfg.AMQPURL)
	if err != nil {
		return nil, nil, err
	}
	if err := mq.CreateQueue(cfg.NotifyQueue); err != nil {
		mq.Close()
		return nil, nil, err
	}
	queue := notify.NewQueueNotifier(mq, cfg.NotifyQueue)
	return notify.NewBreaker(queue, notify.BreakerSettings{}, log.Named("notify")), func() { mq.Close() }, nil
}
