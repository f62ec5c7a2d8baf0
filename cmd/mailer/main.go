// Command mailer consumes queued verification emails and delivers them
// over SMTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"taskmanager/internal/lib/logger/sl"
	"taskmanager/internal/mail"
	"taskmanager/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := server.ReadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read config:", err)
		os.Exit(2)
	}
	log := setupLogger(cfg.App.Env)

	log.Info("starting mailer", slog.String("env", cfg.App.Env), slog.String("queue", cfg.RabbitMQ.QueueName))

	if err := run(ctx, cfg, log); err != nil {
		log.Error("mailer stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("mailer gracefully stopped")
}

func run(ctx context.Context, cfg *server.Config, log *slog.Logger) error {
	if cfg.RabbitMQ.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required")
	}

	sender := mail.NewSMTPSender(mail.SMTPConfig(cfg.SMTP), log)
	consumer, err := mail.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName, sender, log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	log.Info("consumer successfully started")
	return consumer.Run(ctx)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case server.EnvLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case server.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
