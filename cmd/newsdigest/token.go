package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/server"
)

func tokenCmd(c *cli) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for POST /run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.TriggerSecret == "" {
				return fmt.Errorf("trigger_secret is not configured")
			}
			token, err := server.IssueToken(c.cfg.TriggerSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "who the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
