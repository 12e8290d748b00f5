// Command bantayd serves the bantay authentication API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lborres/bantay"
	fiberadapter "github.com/lborres/bantay/adapters/fiber"
	"github.com/lborres/bantay/adapters/memory"
	pgxadapter "github.com/lborres/bantay/adapters/pgx"
	redisadapter "github.com/lborres/bantay/adapters/redis"
	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/internal/config"
	"github.com/lborres/bantay/notify"
	"github.com/lborres/bantay/pkg/logging"
	"github.com/lborres/bantay/services"
)

func logFormat() string {
	format := []string{
		// Timestamp & Request ID
		"${time}|${requestid}",

		// Response metadata
		"${status}|${latency}",

		// Client info
		"${ip}",

		// Request details
		"${method}|${path}",

		// errors
		"${error}",
	}
	return strings.Join(format, "|") + "\n"
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logging.NewZap(logging.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logging.NewZapLogger(zl)); err != nil {
		zl.Fatal("bantayd stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	storage, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	limits, closeLimits, err := openRateLimitStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimits()

	sender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}
	queue := notify.NewQueue(sender, notify.QueueConfig{MaxRetries: 3}, logger)

	app := fiber.New(fiber.Config{AppName: "bantayd"})
	app.Use(requestid.New())
	app.Use(recoverer.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     logFormat(),
		TimeFormat: "2006/01/02 15:04:05",
	}))
	if len(cfg.TrustedOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.TrustedOrigins,
			AllowCredentials: true,
		}))
	}

	http := fiberadapter.New(app, fiberadapter.Config{
		CookieName:   cfg.CookieName,
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
		Logger:       logger,
	})

	b, err := bantay.New(bantay.Config{
		Secret:         cfg.Secret,
		Storage:        storage,
		HTTP:           http,
		RateLimitStore: limits,
		Notifier:       queue,
		Logger:         logger,
		Policy:         cfg.Policy(),
		BasePath:       cfg.BasePath,
	})
	if err != nil {
		return fmt.Errorf("could not create bantay instance: %w", err)
	}

	if err := seedAdmin(ctx, b, cfg, logger); err != nil {
		return err
	}

	sweeper := services.NewSweeper(storage, limits, cfg.SweepInterval, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return queue.Run(ctx) })
	g.Go(func() error {
		logger.Info(ctx, "listening", "addr", cfg.Addr, "base_path", cfg.BasePath)
		return app.Listen(cfg.Addr, fiber.ListenConfig{DisableStartupMessage: true})
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info(context.Background(), "shut down cleanly")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger logging.Logger) (core.StorageAdapter, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn(ctx, "no database configured, using in-memory storage")
		return memory.NewStorage(), func() {}, nil
	}

	pool, err := pgxadapter.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pgxadapter.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pgxadapter.New(pool), pool.Close, nil
}

func openRateLimitStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (core.RateLimitStore, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn(ctx, "no redis configured, rate limits are per process")
		return memory.NewRateLimitStore(), func() {}, nil
	}

	client, err := redisadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return redisadapter.NewRateLimitStore(client, redisadapter.DefaultKeyPrefix), func() { client.Close() }, nil
}

func newSender(cfg *config.Config, logger logging.Logger) (notify.Sender, error) {
	if cfg.SMTPHost == "" {
		return notify.LogSender{Logger: logger, ShowLinks: cfg.MailShowLinks}, nil
	}

	encryption, err := notify.ParseEncryption(cfg.SMTPEncryption)
	if err != nil {
		return nil, err
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		Username:   cfg.SMTPUsername,
		Password:   cfg.SMTPPassword,
		From:       cfg.SMTPFrom,
		FromName:   cfg.SMTPFromName,
		Encryption: encryption,
	})
}

// seedAdmin creates the configured admin once. An existing account is left
// alone.
func seedAdmin(ctx context.Context, b *bantay.Bantay, cfg *config.Config, logger logging.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	identity, err := b.Seed(ctx, core.RegisterInput{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Name:     "Administrator",
		Role:     core.RoleAdmin,
	})
	if errors.Is(err, core.ErrDuplicateEmail) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	logger.Info(ctx, "admin seeded", "identity_id", identity.ID)
	return nil
}
