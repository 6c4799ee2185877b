package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/internal/appconfig"
	"github.com/mkrav/gitdocs/internal/gitcmd"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run gitdocs diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			gitPath, err := exec.LookPath("git")
			if err != nil {
				return fmt.Errorf("git not found on PATH: %w", err)
			}
			logger.Info("doctor git ok", "path", gitPath)

			run := gitcmd.CLI{}
			checkCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if out, err := run.Run(checkCtx, ".", "version"); err != nil {
				return fmt.Errorf("git version failed: %w", err)
			} else {
				logger.Info("doctor git version", "version", strings.TrimSpace(out))
			}
			if out, err := run.Run(checkCtx, ".", "lfs", "version"); err != nil {
				return fmt.Errorf("git-lfs is required for document locks: %w", err)
			} else {
				logger.Info("doctor git-lfs version", "version", strings.TrimSpace(out))
			}

			for _, dir := range []string{cfg.RepoRoot, cfg.StateDir, cfg.Telegram.TmpDir} {
				if err := checkWritableDir(dir); err != nil {
					return err
				}
				logger.Info("doctor directory ok", "dir", dir)
			}

			if cfg.Telegram.Token == "" {
				logger.Warn("doctor telegram token missing", "env", appconfig.EnvTelegramToken)
			} else {
				logger.Info("doctor telegram token present")
			}
			if cfg.GitLab.APIToken == "" {
				logger.Info("doctor gitlab rest fallback disabled", "env", appconfig.EnvGitLabToken)
			} else {
				logger.Info("doctor gitlab rest fallback enabled")
			}

			logger.Info("doctor complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("directory %s: %w", dir, err)
	}
	probe := filepath.Join(dir, fmt.Sprintf(".doctor-%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	return os.Remove(probe)
}
