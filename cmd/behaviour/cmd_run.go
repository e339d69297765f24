package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeusync/behaviour/internal/injector"
)

func (c *cli) runCmd() *cobra.Command {
	var (
		agents   int
		maxTicks uint64
		serve    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Spawn agents from the configured template and tick them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("agents") {
				c.cfg.Runner.Agents = agents
			}
			if flags.Changed("ticks") {
				c.cfg.Runner.MaxTicks = maxTicks
			}
			if flags.Changed("serve") {
				c.cfg.Server.Enabled = serve
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			app, cleanup, err := injector.InitApp(c.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
	cmd.Flags().IntVarP(&agents, "agents", "n", 0, "number of agents to spawn")
	cmd.Flags().Uint64Var(&maxTicks, "ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	cmd.Flags().BoolVar(&serve, "serve", false, "expose the inspection server")
	return cmd
}
