package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/restaurant-reservation/internal/config"
	"github.com/iliyamo/restaurant-reservation/internal/database"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/logging"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
	"github.com/iliyamo/restaurant-reservation/internal/router"
	"github.com/iliyamo/restaurant-reservation/internal/service"
	"github.com/iliyamo/restaurant-reservation/internal/subscription"
	"github.com/iliyamo/restaurant-reservation/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(serviceName, cfg.Env)
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log, migrateUp)
		},
	}
	cmd.Flags().BoolVar(&migrateUp, "migrate", false, "apply database migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger, migrateUp bool) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.ConfigFromEnv(serviceName))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	var (
		store  service.BookingStore
		dir    service.Directory
		checks []handler.ReadyCheck
	)
	switch cfg.StoreBackend {
	case config.BackendMySQL:
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return err
		}
		defer db.Close()
		if migrateUp {
			applied, err := database.Migrate(ctx, db)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "files", applied)
		}
		store = repository.NewBookingRepo(db)
		dir = repository.NewRestaurantRepo(db)
		checks = append(checks, handler.ReadyCheck{Name: "mysql", Check: db.PingContext})
	default:
		static := repository.NewStaticDirectory()
		if cfg.DirectoryFile != "" {
			if static, err = repository.LoadStaticDirectory(cfg.DirectoryFile); err != nil {
				return err
			}
		}
		store, dir = repository.NewMemoryBookingStore(), static
		log.Warn("using in-memory booking store; data is lost on restart")
	}

	rdb := config.NewRedisClient(cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
		checks = append(checks, handler.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}

	broker := subscription.NewBroker(store, log)
	defer broker.Close()
	relay := subscription.NewRedisRelay(rdb, "", broker, log)

	notifier, closeNotifier, err := newNotifier(cfg.Notify, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	var cache *service.AvailabilityCache
	if cfg.AvailabilityCache.Enabled {
		cache = service.NewAvailabilityCache(rdb, cfg.AvailabilityCache.TTL, cfg.AvailabilityCache.Prefix, log)
	}

	engine := service.NewEngine(service.Deps{
		Store:     store,
		Directory: dir,
		Broker:    broker,
		Notifier:  notifier,
		Cache:     cache,
		Logger:    log,
	}, service.Config{
		SlotGranularity: cfg.Booking.SlotGranularity,
		ReserveAttempts: cfg.Booking.ReserveAttempts,
		ReserveBackoff:  cfg.Booking.ReserveBackoff,
		StoreAttempts:   cfg.Booking.StoreAttempts,
		NotifyTimeout:   cfg.Notify.Timeout,
		CodePrefix:      cfg.Booking.ConfirmationCode,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.AccessLog(log))
	router.RegisterPublic(e, handler.NewPublicHandler(engine, log), checks...)
	router.RegisterCustomer(e, handler.NewBookingHandler(engine, log), cfg.JWTSecret, middleware.NewTokenBucket(cfg.RateLimit, rdb, log))
	router.RegisterOperator(e, handler.NewOperatorHandler(engine, log), cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end on shutdown so open event streams close
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreBackend, "notify", cfg.Notify.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil {
				log.Warn("subscription relay stopped", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newNotifier builds the configured notification transport and a func
// releasing it.
func newNotifier(cfg config.NotifyConfig, log *slog.Logger) (service.Notifier, func(), error) {
	switch cfg.Backend {
	case config.NotifyKafka:
		p, err := queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case config.NotifyRabbitMQ:
		return queue.NewRabbitPublisher(cfg.RabbitURL, cfg.Queue, log), func() {}, nil
	default:
		return service.NopNotifier{}, func() {}, nil
	}
}
