// Newsdigest fetches business and technology news from several sources,
// drops items already delivered, summarizes the rest with an LLM and sends
// a grouped digest.
//
// Usage:
//
//	newsdigest run            # one digest run
//	newsdigest serve          # scheduled runs plus /healthz, /metrics, /status
//	newsdigest seen list      # inspect the seen store
//	newsdigest token          # sign a POST /run token
//	newsdigest version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/config"
)

var version = "dev"

// cli carries what the root command loads for its subcommands.
type cli struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

func main() {
	c := &cli{}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(c).ExecuteContext(ctx)
	stop()
	if err != nil {
		logger := c.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("newsdigest failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "newsdigest",
		Short:         "Scheduled business and tech news digest",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.load()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.DefaultPath, "path to the YAML config file")

	rootCmd.AddCommand(runCmd(c))
	rootCmd.AddCommand(serveCmd(c))
	rootCmd.AddCommand(seenCmd(c))
	rootCmd.AddCommand(tokenCmd(c))
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func (c *cli) load() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	c.logger = cfg.Log.NewLogger()
	slog.SetDefault(c.logger)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "newsdigest %s\n", version)
		},
	}
}
