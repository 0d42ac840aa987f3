package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/expense-assistant/internal/api/handlers"
	"github.com/dvloznov/expense-assistant/internal/app"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "process <text>",
		Short: "Process a message and persist its transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, userID string) error {
				if err := requireUser(userID); err != nil {
					return err
				}
				res, err := a.Processor.Process(ctx, pipeline.Message{
					UserID: userID,
					Text:   strings.Join(args, " "),
					Source: source,
				})
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", domain.SourceManual, "message source")
	return cmd
}

func parseCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Parse a message without saving anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, userID string) error {
				if err := requireUser(userID); err != nil {
					return err
				}
				preview, err := a.Processor.Preview(ctx, pipeline.Message{
					UserID: userID,
					Text:   strings.Join(args, " "),
					Source: source,
				})
				if err != nil {
					return err
				}
				return printJSON(preview)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", domain.SourceManual, "message source")
	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, userID string) error {
				if err := requireUser(userID); err != nil {
					return err
				}
				acc, err := a.Store.GetAccount(ctx, userID, args[0])
				if err != nil {
					return err
				}
				if acc == nil {
					return fmt.Errorf("account %s not found", args[0])
				}
				fmt.Printf("%s (%s): %s\n", acc.Name, acc.Institution, handlers.FormatCOP(acc.Balance))
				return nil
			})
		},
	}
}

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Inspect saved transactions",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, userID string) error {
				if err := requireUser(userID); err != nil {
					return err
				}
				txs, err := a.Store.ListTransactions(ctx, userID, limit)
				if err != nil {
					return err
				}
				if len(txs) == 0 {
					fmt.Println("No transactions found.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				defer w.Flush()
				fmt.Fprintln(w, "DATE\tTYPE\tAMOUNT\tACCOUNT\tDESCRIPTION\tDUPLICATE")
				for _, tx := range txs {
					fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\t%s\t%s\n",
						tx.Date, tx.Time, tx.Type, handlers.FormatCOP(tx.Amount), tx.AccountID,
						tx.Description, tx.DuplicateStatus)
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of transactions")

	cmd.AddCommand(list)
	return cmd
}
