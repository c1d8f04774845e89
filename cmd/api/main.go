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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/go-api-notify/internal/application/fanout"
	"github.com/go-api-notify/internal/application/notification"
	"github.com/go-api-notify/internal/config"
	"github.com/go-api-notify/internal/infrastructure/email"
	"github.com/go-api-notify/internal/infrastructure/expo"
	jwtinfra "github.com/go-api-notify/internal/infrastructure/jwt"
	"github.com/go-api-notify/internal/infrastructure/postgres"
	"github.com/go-api-notify/internal/infrastructure/pubsub"
	"github.com/go-api-notify/internal/infrastructure/sns"
	"github.com/go-api-notify/internal/metrics"
	"github.com/go-api-notify/internal/pkg/logger"
	transporthttp "github.com/go-api-notify/internal/transport/http"
	"github.com/go-api-notify/internal/transport/http/handler"
	"github.com/go-api-notify/internal/transport/kafka"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", logger.Error(err))
		os.Exit(1)
	}

	log := logger.New(cfg.AppEnv, "notify-api")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("service shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pool, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := pubsub.Connect(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("load jwt keys: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	bridge := pubsub.NewBridge(redisClient, log)

	var smsSender fanout.SMSSender
	if snsClient, err := sns.NewClient(ctx, cfg.AWS); err == nil {
		smsSender = sns.NewSender(snsClient, cfg.AWS.SMSSenderID)
	} else {
		log.Warn("SMS delivery disabled", logger.Error(err))
	}

	var emailSender fanout.EmailSender
	if sender, err := email.New(cfg.Email, cfg.SMTP); err == nil {
		emailSender = sender
	} else {
		log.Warn("email delivery disabled", logger.Error(err))
	}

	engine := fanout.New(bridge, expo.NewClient(cfg.Expo, log), smsSender, emailSender,
		fanout.WithTimeout(cfg.Delivery.Timeout),
		fanout.WithConcurrency(cfg.Delivery.MaxConcurrency),
		fanout.WithRecorder(m),
		fanout.WithLogger(log),
	)

	svc := notification.NewService(notification.ServiceDeps{
		UnitOfWork: postgres.NewStore(pool, log),
		Dispatcher: engine,
		Subscriber: bridge,
		Logger:     log,
	})

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		NotificationSvc: svc,
		JWTProvider:     jwtProvider,
		Metrics:         m,
		HealthChecks: map[string]handler.Check{
			"postgres": postgres.Healthcheck(pool),
			"redis":    pubsub.Healthcheck(redisClient),
		},
		Logger: log,
	})

	var consumer *kafka.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		group, err := kafka.NewConsumerGroup(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("create kafka consumer group: %w", err)
		}
		consumer = kafka.NewConsumer(cfg.Kafka.Topic, group, svc, log)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", slog.String("addr", srv.Addr), slog.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if consumer != nil {
		g.Go(func() error {
			if err := consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
