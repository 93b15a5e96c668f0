package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/app"
)

func runCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, dedupe, summarize and deliver one digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, c.cfg, c.logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			rep, runErr := a.Run(ctx)
			if asJSON {
				enc := json.NewEncoder(cmd.ErrOrStderr())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&asJSON, "report", false, "print the run report as JSON on stderr")
	return cmd
}

func serveCmd(c *cli) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run digests on the configured schedule and serve status endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := c.cfg
			if now {
				cfg.RunOnStart = true
			}
			a, err := app.New(ctx, cfg, c.logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			c.logger.Info("serving", "schedule", cfg.Schedule, "timezone", cfg.Timezone, "addr", cfg.MetricsAddr, "run_on_start", cfg.RunOnStart)
			return a.Serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "run one digest immediately instead of waiting for the first tick")
	return cmd
}
