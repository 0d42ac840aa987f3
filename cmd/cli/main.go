package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/expense-assistant/internal/app"
	"github.com/dvloznov/expense-assistant/internal/config"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
	log     zerolog.Logger
	rootCmd = &cobra.Command{
		Use:               "cli",
		Short:             "Expense assistant CLI",
		Long:              `Run financial messages through the ingestion pipeline and manage rules, balances and usage.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env vars take precedence)")
	rootCmd.PersistentFlags().String("user", "", "user id to act as (default: DEFAULT_USER_ID)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	_ = v.BindPFlag("default_user_id", rootCmd.PersistentFlags().Lookup("user"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(transactionsCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(usageCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(auditCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if err := config.Bind(v, cfgFile); err != nil {
		return err
	}
	log = logger.NewWithConfig(os.Stderr, v.GetString("log_level"), v.GetString("log_format"))
	return nil
}

// runWithApp wires the services, runs fn and releases them.
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, userID string) error) error {
	cfg := config.FromViper(v)
	ctx := logger.WithContext(cmd.Context(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a, cfg.DefaultUserID)
}

// requireUser fails commands that act on behalf of a user when none is set.
func requireUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("no user: pass --user or set DEFAULT_USER_ID")
	}
	return nil
}

func printJSON(out interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
