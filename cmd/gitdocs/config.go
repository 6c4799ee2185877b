package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkrav/gitdocs/internal/appconfig"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the gitdocs configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var path string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := appconfig.WriteDefault(path, force)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote config: %s\n", written)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "target config path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
