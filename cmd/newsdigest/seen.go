package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/seen"
)

func seenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seen",
		Short: "Inspect or edit the seen store",
	}
	cmd.AddCommand(seenCheckCmd(c), seenAddCmd(c), seenListCmd(c))
	return cmd
}

func seenCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check <key>",
		Short: "Report whether a key was already delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := seen.Open(cmd.Context(), c.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			has, err := store.Has(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			state := "new"
			if has {
				state = "seen"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", state, args[0])
			return nil
		},
	}
}

func seenAddCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "add <key>...",
		Short: "Mark keys as seen so they are never delivered",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := seen.Open(cmd.Context(), c.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, key := range args {
				if err := store.Record(cmd.Context(), key); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %d keys\n", len(args))
			return nil
		},
	}
}

func seenListCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recently recorded keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := seen.Open(cmd.Context(), c.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			lister, ok := store.(seen.Lister)
			if !ok {
				return fmt.Errorf("store driver %q cannot list keys", c.cfg.Store.Driver)
			}
			total, err := lister.Count(cmd.Context())
			if err != nil {
				return err
			}
			records, err := lister.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RECORDED\tKEY")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\n", r.SeenAt.Format("2006-01-02 15:04:05"), r.Key)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d keys\n", len(records), total)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of keys to show")
	return cmd
}
