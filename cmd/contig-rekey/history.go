package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/contig-rekey/contig-rekey/internal/config"
	"github.com/contig-rekey/contig-rekey/internal/ledger"
	"github.com/contig-rekey/contig-rekey/internal/model"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var (
		assembly string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAndValidate(*configPath)
			if err != nil {
				return err
			}
			logger, err := cfg.Logging.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if !cfg.Ledger.Enabled {
				return fmt.Errorf("the run ledger is disabled; set ledger.enabled in %s", *configPath)
			}
			return showHistory(context.Background(), cfg.Ledger.Path, assembly, limit, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&assembly, "assembly", "", "only show runs of this assembly")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	return cmd
}

func showHistory(ctx context.Context, path, assembly string, limit int, w io.Writer, logger *slog.Logger) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}
	l, err := ledger.Open(ctx, path, logger)
	if err != nil {
		return err
	}
	defer l.Close()

	reports, err := l.Recent(ctx, assembly, limit)
	if err != nil {
		return err
	}
	writeHistory(w, reports)
	return nil
}

func writeHistory(w io.Writer, reports []*model.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tASSEMBLY\tSTUDIES\tOUTCOME\tCHECKED\tCANONICAL\tINSERTED\tDELETED")
	for _, r := range reports {
		s := r.Summary
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.RunID, r.StartedAt.Format(time.RFC3339), r.Assembly, r.StudyList(),
			r.Outcome, s.Checked, s.AlreadyCanonical, s.Inserted, s.Deleted)
	}
	tw.Flush()
}
