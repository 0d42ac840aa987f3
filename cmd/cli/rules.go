package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dvloznov/expense-assistant/internal/app"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/rules"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage automation rules",
	}
	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(generateAccountRulesCmd())
	cmd.AddCommand(deleteRuleCmd())
	return cmd
}

func listRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, userID string) error {
				if err := requireUser(userID); err != nil {
					return err
				}
				list, err := a.Store.ListRules(ctx, userID)
				if err != nil {
					return err
				}
				printRules(rules.SortRules(list))
				return nil
			})
		},
	}
}

func generateAccountRulesCmd() *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "generate-accounts",
		Short: "Draft account detection rules from your accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, userID string) error {
				if err := requireUser(userID); err != nil {
					return err
				}
				accounts, err := a.Store.ListAccounts(ctx, userID)
				if err != nil {
					return err
				}
				drafts := rules.GenerateAccountRules(userID, accounts)
				if !apply {
					printRules(drafts)
					fmt.Println("\nRe-run with --apply to save these rules.")
					return nil
				}
				for _, d := range drafts {
					saved, err := a.Store.InsertRule(ctx, d)
					if err != nil {
						return err
					}
					fmt.Printf("Saved %s (%s)\n", saved.Name, saved.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "save the drafted rules")
	return cmd
}

func deleteRuleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Soft-delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app.App, userID string) error {
				if err := requireUser(userID); err != nil {
					return err
				}
				if err := a.Store.SoftDeleteRule(ctx, userID, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted rule %s\n", args[0])
				return nil
			})
		},
	}
}

func printRules(list []domain.AutomationRule) {
	if len(list) == 0 {
		fmt.Println("No rules found.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tPRIORITY\tTYPE\tACTIVE\tNAME")
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\n", r.ID, r.Priority, r.RuleType, r.IsActive, r.Name)
	}
}
