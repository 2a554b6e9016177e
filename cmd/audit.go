/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/modcatalog/apiserver/config"
	"github.com/modcatalog/apiserver/internal/mq"
	"github.com/modcatalog/apiserver/types"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit event stream",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log audit events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is none; nothing to tail")
		}
		defer queue.Close()

		log.Info(ctx, "tailing audit events", "channel", cfg.MQ.AuditChannel)
		err = mq.SubscribeAudit(ctx, queue, cfg.MQ.AuditChannel, func(ctx context.Context, event types.AuditEvent) error {
			log.Info(ctx, string(event.Kind),
				"id", event.ID,
				"actor", event.Actor,
				"subject", event.Subject,
				"detail", event.Detail,
				"at", event.At,
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)
}
