package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "insight",
	Short:         "insight - calendar insight core for a wellness CRM",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tools over stdio or streamable HTTP",
	RunE:  runServe,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Analyze the events in a JSON file",
	RunE:  runProcess,
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show or change a user's spend ceilings",
}

var budgetGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the spend ceilings and utilization",
	RunE:  runBudgetGet,
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the daily and monthly ceilings in USD",
	RunE:  runBudgetSet,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize model spend",
	RunE:  runStats,
}

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Inspect processed events",
}

var eventGetCmd = &cobra.Command{
	Use:   "get <event-id>",
	Short: "Print the stored analysis for an event",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventGet,
}

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage bearer tokens for the HTTP transport",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a bearer token for a user",
	RunE:  runAPIKeyCreate,
}

var (
	userFlag string

	fileFlag          string
	preferFreeFlag    bool
	historicalFlag    bool
	enforceBudgetFlag bool
	priorityFlag      string
	concurrencyFlag   int

	dailyFlag   float64
	monthlyFlag float64
	periodFlag  string

	tokenFlag       string
	descriptionFlag string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID (defaults to auth.default_user)")

	processCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "JSON file with events and contacts (- for stdin)")
	processCmd.Flags().BoolVar(&preferFreeFlag, "prefer-free", false, "Use the free-tier model for every call")
	processCmd.Flags().BoolVar(&historicalFlag, "historical", false, "Treat the events as a backfill")
	processCmd.Flags().BoolVar(&enforceBudgetFlag, "enforce-budget", false, "Fail or downgrade events when over budget")
	processCmd.Flags().StringVar(&priorityFlag, "priority", "normal", "Admission priority: high, normal or low")
	processCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "Concurrency limit for this run")
	_ = processCmd.MarkFlagRequired("file")

	budgetSetCmd.Flags().Float64Var(&dailyFlag, "daily", 0, "Daily ceiling in USD (0 disables)")
	budgetSetCmd.Flags().Float64Var(&monthlyFlag, "monthly", 0, "Monthly ceiling in USD (0 disables)")

	statsCmd.Flags().StringVarP(&periodFlag, "period", "p", "day", "Rolling window: day, week or month")

	apiKeyCreateCmd.Flags().StringVar(&tokenFlag, "token", "", "Token to register (generated when empty)")
	apiKeyCreateCmd.Flags().StringVar(&descriptionFlag, "description", "", "Free-form note stored with the key")

	budgetCmd.AddCommand(budgetGetCmd, budgetSetCmd)
	eventCmd.AddCommand(eventGetCmd)
	apiKeyCmd.AddCommand(apiKeyCreateCmd)
	rootCmd.AddCommand(serveCmd, processCmd, budgetCmd, statsCmd, eventCmd, apiKeyCmd)
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openApp loads the config and wires the process. Callers must Close it.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return newApp(ctx, cfg)
}

func closeApp(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
}

func (a *app) userID() string {
	if userFlag != "" {
		return userFlag
	}
	return a.cfg.Auth.DefaultUser
}
