package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/internal/appconfig"
	"github.com/mkrav/gitdocs/internal/gitcmd"
	"github.com/mkrav/gitdocs/internal/repo"
	"github.com/mkrav/gitdocs/internal/userstore"
	"github.com/mkrav/gitdocs/schema"
)

func newUsersCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage repository bindings",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newUsersListCmd(&cfgPath))
	cmd.AddCommand(newUsersRemoveCmd(&cfgPath))

	return cmd
}

func newUsersListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List principals with a configured repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := bindingStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			bindings, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(bindings) == 0 {
				_, _ = fmt.Fprintln(out, "no bindings")
				return nil
			}
			for _, b := range bindings {
				_, _ = fmt.Fprintf(out, "%s\t%s\t%s\n", b.PrincipalID, b.Flavor, b.RemoteURL)
			}
			return nil
		},
	}
}

func newUsersRemoveCmd(cfgPath *string) *cobra.Command {
	var keepClone bool
	cmd := &cobra.Command{
		Use:   "remove <chat-id>",
		Short: "Remove a principal's binding and working copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := schema.ChatID(args[0])
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			store, err := bindingStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.Delete(id); err != nil {
				return err
			}
			if !keepClone {
				logger := pslog.Ctx(cmd.Context())
				repos, err := repo.NewManagerWithLogger(cfg.RepoRoot, gitcmd.CLI{}, logger)
				if err != nil {
					return err
				}
				if err := repos.Remove(id); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed binding: %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepClone, "keep-clone", false, "leave the working copy on disk")
	return cmd
}

func bindingStore(cmd *cobra.Command, cfgPath string) (*userstore.Store, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := pslog.Ctx(cmd.Context())
	return userstore.NewStoreWithLogger(filepath.Join(cfg.StateDir, "bindings"), logger)
}
