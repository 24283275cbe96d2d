package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zsiec/vodindex/internal/config"
)

// cliContext carries state shared by subcommands.
type cliContext struct {
	configPath string
	cfg        *config.Config
}

func (c *cliContext) load() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	c.cfg = cfg
	return nil
}

func newRootCommand() *cobra.Command {
	ctx := &cliContext{}

	rootCmd := &cobra.Command{
		Use:           "vodindex",
		Short:         "On-demand manifest assembly and segment index tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "vodindex.yaml", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newBuildCommand(ctx))
	rootCmd.AddCommand(newIndexCommand())

	return rootCmd
}
