package main

import (
	"github.com/spf13/cobra"

	"github.com/zeusync/behaviour/internal/config"
	"github.com/zeusync/behaviour/internal/core/observability/log"
)

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
	log        log.Log
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "behaviour",
		Short: "Author, validate and run behaviour trees",
		Long: `behaviour hosts behaviour-tree agents. Trees are stored as YAML or
JSON definitions, edited from the command line and ticked by a runner
that can expose its agents over HTTP and websocket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (yaml or json)")

	rootCmd.AddCommand(
		c.runCmd(),
		c.validateCmd(),
		c.listCmd(),
		c.inspectCmd(),
		c.editCmd(),
	)
	return rootCmd
}
