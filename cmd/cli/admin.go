package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/expense-assistant/internal/app"
	"github.com/dvloznov/expense-assistant/internal/infra/postgres"
	"github.com/spf13/cobra"
)

func usageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect and maintain monthly usage counters",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show this month's usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, userID string) error {
				if err := requireUser(userID); err != nil {
					return err
				}
				month := postgres.Month(time.Now().In(a.Config.Location()))
				rec, err := a.Store.GetUsage(ctx, userID, month, app.Limits(a.Config))
				if err != nil {
					return err
				}
				fmt.Printf("Month:        %s\n", rec.Month)
				fmt.Printf("AI parses:    %d/%d\n", rec.AIParsesUsed, rec.AIParsesLimit)
				fmt.Printf("Transactions: %d/%d\n", rec.TransactionsCount, rec.TransactionsLimit)
				return nil
			})
		},
	}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete usage rows older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, _ string) error {
				cutoff := postgres.RetentionCutoff(time.Now().In(a.Config.Location()))
				n, err := a.Store.CleanupOldUsage(ctx, cutoff)
				if err != nil {
					return err
				}
				log.Info().Str("cutoff", cutoff).Int64("deleted", n).Msg("Usage cleanup finished")
				return nil
			})
		},
	}

	cmd.AddCommand(show, cleanup)
	return cmd
}

func uploadCmd() *cobra.Command {
	var object string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a local file to the configured GCS bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, _ string) error {
				if a.Storage == nil {
					return fmt.Errorf("GCS_BUCKET is not configured")
				}
				name := object
				if name == "" {
					name = filepath.Join("uploads", time.Now().UTC().Format("2006/01/02"), filepath.Base(args[0]))
				}
				uri, err := a.Storage.UploadFile(ctx, name, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Uploaded %s to %s\n", args[0], uri)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&object, "object", "", "object name (default: uploads/<date>/<file name>)")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect recorded model calls",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent parsing runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, userID string) error {
				if err := requireUser(userID); err != nil {
					return err
				}
				if a.AuditRepo == nil {
					return fmt.Errorf("GCP_PROJECT_ID is not configured")
				}
				runs, err := a.AuditRepo.ListParsingRuns(ctx, userID, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Println("No parsing runs found.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				defer w.Flush()
				fmt.Fprintln(w, "STARTED\tSTATUS\tMODEL\tMESSAGE\tERROR")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						r.StartedTS.Format(time.RFC3339), r.Status, r.ParserVersion, r.MessageID, r.ErrorMessage)
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")

	cmd.AddCommand(list)
	return cmd
}
