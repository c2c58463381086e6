package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/wolfman30/telehealth-scheduling/cmd/mainconfig"
	appconfig "github.com/wolfman30/telehealth-scheduling/internal/config"
	"github.com/wolfman30/telehealth-scheduling/internal/notify"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.NotificationQueueURL == "" {
		logger.Error("notification worker requires NOTIFICATION_QUEUE_URL")
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{FromEmail: cfg.SESFromEmail}, logger)
	case "sendgrid":
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	default:
		logger.Warn("no email provider configured, using stub sender")
		sender = notify.NewStubEmailSender(logger)
	}

	worker := notify.NewWorker(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL, sender, logger,
		notify.WithPollWait(cfg.NotifyPollWaitSeconds),
		notify.WithConcurrency(cfg.WorkerCount),
	)
	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("notification worker stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("notification worker shutting down")
	cancel()
	// let the in-flight receive batch finish
	drain := cfg.NotifyShutdownDrainFor
	if drain <= 0 {
		drain = 2 * time.Second
	}
	time.Sleep(drain)
}
