package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sameehj/kai-node/pkg/safety"
)

func auditCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent execution decisions from the audit database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Audit.Database == "" {
				return errors.New("audit.database is not configured")
			}

			store, err := safety.OpenSQLiteRecorder(cfg.Audit.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				if events == nil {
					events = []safety.AuditEvent{}
				}
				return printJSON(cmd.OutOrStdout(), events)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSUBJECT\tACTION\tRESULT\tDETAIL")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Time.Format(time.RFC3339), e.Subject, e.Action, e.Result, e.Detail)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to show (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON")
	return cmd
}
