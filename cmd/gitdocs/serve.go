package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/core"
	"github.com/mkrav/gitdocs/internal/appconfig"
	"github.com/mkrav/gitdocs/internal/bot"
	"github.com/mkrav/gitdocs/internal/chat"
	"github.com/mkrav/gitdocs/schema"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gitdocs bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if level, ok := pslog.ParseLevel(cfg.Logging.Level); ok {
				logger = logger.LogLevel(level)
			}
			if cfg.Telegram.Token == "" {
				return fmt.Errorf("telegram bot token is required; set %s", appconfig.EnvTelegramToken)
			}
			if err := os.MkdirAll(cfg.Telegram.TmpDir, 0o700); err != nil {
				return err
			}

			svc, err := core.NewService(cfg.ServiceConfig(), core.ServiceDeps{
				Logger:         logger,
				GitLabAPIToken: cfg.GitLab.APIToken,
			})
			if err != nil {
				return err
			}

			transport := chat.NewTelegram(cfg.Telegram.Token, logger)
			b := bot.New(svc, transport, bot.Options{
				Admins: toChatIDs(cfg.Telegram.AdminChatIDs),
				TmpDir: cfg.Telegram.TmpDir,
				Logger: logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info("bot polling started",
				"repo_root", cfg.RepoRoot,
				"state_dir", cfg.StateDir,
				"admins", len(cfg.Telegram.AdminChatIDs))
			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("bot stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func toChatIDs(values []string) []schema.ChatID {
	if len(values) == 0 {
		return nil
	}
	out := make([]schema.ChatID, 0, len(values))
	for _, value := range values {
		out = append(out, schema.ChatID(value))
	}
	return out
}
