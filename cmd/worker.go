/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/growhive/apiserver/internal/db"
	"github.com/growhive/apiserver/internal/mailer"
	"github.com/growhive/apiserver/internal/mq"
	"github.com/growhive/apiserver/internal/services"
	"github.com/growhive/apiserver/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var purgeInterval time.Duration

// workerCmd delivers queued OTP emails and purges expired codes.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued OTP emails",
	Long: `Consumes the OTP email queue (MQ_OTP_QUEUE) and delivers each code
through SMTP. With --purge-interval it also deletes expired codes.

	growhive worker --purge-interval 10m
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()
		ctx := cmd.Context()

		broker, err := mq.New(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND must be rabbitmq or pubsub to run the worker")
		}
		defer broker.Close()

		delivery, err := mailer.NewDelivery(cfg.SMTP, logger)
		if err != nil {
			return err
		}

		group, ctx := errgroup.WithContext(ctx)
		consumer := mailer.NewConsumer(broker, cfg.MQ.OTPQueue, delivery, logger)
		group.Go(func() error {
			return consumer.Run(ctx)
		})

		if purgeInterval > 0 {
			dbConn, err := db.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer dbConn.Close()

			otps := services.NewOTPService(store.NewUserRepository(dbConn), store.NewOTPRepository(dbConn), delivery, services.OTPOptions{
				TTL:    cfg.OTP.TTL,
				Logger: logger,
			})
			group.Go(func() error {
				return purgeLoop(ctx, otps, purgeInterval, logger)
			})
		}

		return group.Wait()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().DurationVar(&purgeInterval, "purge-interval", 0, "delete expired OTP codes at this interval (0 disables)")
}

func purgeLoop(ctx context.Context, otps *services.OTPService, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := otps.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("failed to purge expired otps", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("purged expired otps", zap.Int64("count", removed))
			}
		}
	}
}
