package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/config"
	"github.com/noah-isme/support-hubs/internal/notify"
	"github.com/noah-isme/support-hubs/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metrics := obs.NewVoucherMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "support_hubs"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	emailQueue := envOrDefault("QUEUE_EMAIL_NAME", "email")
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			emailQueue: 6,
			"default":  1,
		},
		Logger:   asynqLogger{logger},
		LogLevel: asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(taskCtx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(taskCtx)
			logger.Error().Err(err).Str("task", task.Type()).Int("retried", retried).Msg("task failed")
		}),
	})

	var sender common.EmailSender = common.LogEmailSender{
		Logger: logger.With().Str("component", "mail").Logger(),
		From:   cfg.Notify.EmailFrom,
	}
	emailHandler := notify.EmailHandler{Mail: sender, Logger: logger}

	mux := asynq.NewServeMux()
	mux.HandleFunc(notify.TaskVoucherIssuedEmail, func(taskCtx context.Context, task *asynq.Task) error {
		err := emailHandler.ProcessTask(taskCtx, task)
		switch {
		case err == nil:
			metrics.EmailTask("sent")
		case errors.Is(err, asynq.SkipRetry):
			metrics.EmailTask("dropped")
		default:
			metrics.EmailTask("retry")
		}
		return err
	})

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Str("queue", emailQueue).Int("concurrency", cfg.Queue.Concurrency).Msg("worker starting")

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
