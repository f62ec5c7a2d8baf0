package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskmanager/internal/auth"
	"taskmanager/internal/lib/logger/sl"
	"taskmanager/internal/mail"
	"taskmanager/internal/metrics"
	"taskmanager/internal/objectstore"
	"taskmanager/internal/server"
	"taskmanager/repository/db"
	inmemory "taskmanager/repository/inmemory"
	"taskmanager/repository/mongodb"
	redisstore "taskmanager/repository/redis"
)

func main() {
	cfg, err := server.ReadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read config:", err)
		os.Exit(2)
	}

	log := setupLogger(cfg.App.Env, os.Stdout)
	log.Info("starting task service", slog.String("env", cfg.App.Env), slog.String("driver", cfg.Storage.Driver))
	if cfg.UsesLegacySecret() {
		log.Warn("JWT_SECRET is not set, signing sessions with the legacy shared secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", sl.Err(err))
		os.Exit(1)
	}
	defer stores.close()

	mailer, mailFrom, closeMailer, err := setupMailer(cfg, log)
	if err != nil {
		log.Error("failed to set up mail delivery", sl.Err(err))
		os.Exit(1)
	}
	defer closeMailer()

	deps := server.Dependencies{
		Users:    stores.users,
		Tokens:   stores.tokens,
		Tasks:    stores.tasks,
		Issuer:   auth.NewIssuer(cfg.Auth.JWTSecret, auth.DefaultTTL),
		Mailer:   mailer,
		MailFrom: mailFrom,
		Health:   stores.health,
		Metrics:  metrics.New(),
		Logger:   log,
	}

	s3cfg := objectstore.Config(cfg.S3)
	if s3cfg.Configured() {
		attachments, err := objectstore.NewS3Store(ctx, s3cfg)
		if err != nil {
			log.Error("failed to set up attachment storage", sl.Err(err))
			os.Exit(1)
		}
		deps.Attachments = attachments
	} else {
		log.Warn("S3_BUCKET is not set, attachment uploads are disabled")
	}

	api := server.NewTaskAPI(cfg, deps)
	if api == nil {
		log.Error("failed to initialize api")
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- api.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", sl.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	} else {
		log.Info("server stopped gracefully")
	}
}

func setupLogger(env string, w io.Writer) *slog.Logger {
	var log *slog.Logger

	switch env {
	case server.EnvLocal:
		log = slog.New(
			slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case server.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

type stores struct {
	users  server.UserRepository
	tokens server.TokenRepository
	tasks  server.TaskRepository
	health server.Pinger
	close  func()
}

// openStores connects the configured backend. Verification tokens move to
// Redis when REDIS_ADDR is set; otherwise the main store keeps them.
func openStores(ctx context.Context, cfg *server.Config, log *slog.Logger) (*stores, error) {
	var s *stores

	switch cfg.Storage.Driver {
	case server.DriverMongo:
		st, err := mongodb.NewStorage(ctx, log, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = st.Close(context.Background())
			return nil, err
		}
		s = &stores{users: st, tokens: st, tasks: st, health: st, close: func() {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.Close(c); err != nil {
				log.Error("failed to disconnect document store", sl.Err(err))
			}
		}}
	case server.DriverPostgres:
		if err := db.Migration(cfg.Storage.DBStr, cfg.Storage.MigratePath); err != nil {
			return nil, err
		}
		log.Info("migrations applied")
		st, err := db.NewStorage(ctx, log, cfg.Storage.DBStr)
		if err != nil {
			return nil, err
		}
		s = &stores{users: st, tokens: st, tasks: st, health: st, close: st.Close}
	case server.DriverMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		st := inmemory.NewStorage()
		s = &stores{users: st, tokens: st, tasks: st, health: st, close: func() {}}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Addr == "" {
		return s, nil
	}
	tokens, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		s.close()
		return nil, err
	}
	log.Info("verification tokens stored in redis", slog.String("addr", cfg.Redis.Addr))
	closeMain := s.close
	s.tokens = tokens
	s.close = func() {
		if err := tokens.Close(); err != nil {
			log.Error("failed to close redis client", sl.Err(err))
		}
		closeMain()
	}
	return s, nil
}

// setupMailer publishes verification emails to RabbitMQ for cmd/mailer
// when a broker is configured and sends them over SMTP inline otherwise.
func setupMailer(cfg *server.Config, log *slog.Logger) (mail.Sender, string, func(), error) {
	smtp := mail.NewSMTPSender(mail.SMTPConfig(cfg.SMTP), log)
	if cfg.RabbitMQ.URL == "" {
		return smtp, smtp.From(), func() {}, nil
	}

	q, err := mail.NewQueueSender(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		return nil, "", nil, err
	}
	log.Info("verification emails queued", slog.String("queue", cfg.RabbitMQ.QueueName))
	return q, smtp.From(), q.Close, nil
}
