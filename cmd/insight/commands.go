package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/concurrency"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/orchestrator"
)

// eventBatch is the input of the process command. A bare JSON array is read
// as events with no contacts.
type eventBatch struct {
	Events   []event.Event   `json:"events"`
	Contacts []event.Contact `json:"contacts"`
}

func readEventBatch(r io.Reader) (*eventBatch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("events file is not valid JSON")
	}

	var batch eventBatch
	if gjson.ParseBytes(data).IsArray() {
		err = json.Unmarshal(data, &batch.Events)
	} else {
		err = json.Unmarshal(data, &batch)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	if len(batch.Events) == 0 {
		return nil, fmt.Errorf("no events in input")
	}
	return &batch, nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	in := cmd.InOrStdin()
	if fileFlag != "-" {
		f, err := os.Open(fileFlag)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	batch, err := readEventBatch(in)
	if err != nil {
		return err
	}
	priority, err := concurrency.ParsePriority(priorityFlag)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)
	if err := a.withPipeline(); err != nil {
		return err
	}
	a.startReporter(ctx)

	out, err := a.orchestrator.Process(ctx, a.userID(), batch.Events, batch.Contacts, orchestrator.Options{
		PreferFreeTier: preferFreeFlag,
		Priority:       priority,
		Concurrency:    concurrencyFlag,
		Historical:     historicalFlag,
		EnforceBudget:  enforceBudgetFlag,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func runBudgetGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	limits, err := a.costs.GetBudgetLimits(ctx, a.userID())
	if err != nil {
		return err
	}
	util, err := a.costs.Utilization(ctx, a.userID())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "user:        %s\n", a.userID())
	fmt.Fprintf(w, "daily:       %s\n", formatLimit(limits.DailyLimit))
	fmt.Fprintf(w, "monthly:     %s\n", formatLimit(limits.MonthlyLimit))
	fmt.Fprintf(w, "utilization: %.1f%%\n", util*100)
	if !limits.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated:     %s\n", humanize.Time(limits.UpdatedAt))
	}
	return nil
}

func runBudgetSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if !cmd.Flags().Changed("daily") && !cmd.Flags().Changed("monthly") {
		return fmt.Errorf("set --daily and/or --monthly")
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	limits, err := a.costs.GetBudgetLimits(ctx, a.userID())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("daily") {
		limits.DailyLimit = dailyFlag
	}
	if cmd.Flags().Changed("monthly") {
		limits.MonthlyLimit = monthlyFlag
	}
	if err := a.costs.SetBudgetLimits(ctx, a.userID(), *limits); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "budget for %s: daily %s, monthly %s\n",
		a.userID(), formatLimit(limits.DailyLimit), formatLimit(limits.MonthlyLimit))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	stats, err := a.costs.GetCostStats(ctx, a.userID(), cost.Period(periodFlag))
	if err != nil {
		return err
	}
	writeStats(cmd.OutOrStdout(), a.userID(), stats)
	return nil
}

func writeStats(w io.Writer, userID string, stats *cost.CostStats) {
	fmt.Fprintf(w, "user %s, last %s\n", userID, stats.Period)
	fmt.Fprintf(w, "  cost:     %s\n", formatUSD(stats.TotalCost))
	fmt.Fprintf(w, "  requests: %s\n", humanize.Comma(int64(stats.RequestCount)))
	fmt.Fprintf(w, "  tokens:   %s\n", humanize.Comma(int64(stats.TotalTokens)))
	fmt.Fprintf(w, "  budget:   %.1f%% used\n", stats.BudgetUtilization*100)

	writeTotals(w, "model", stats.PerModel)
	writeTotals(w, "operation", stats.PerOperation)
}

func writeTotals(w io.Writer, label string, totals map[string]cost.Totals) {
	if len(totals) == 0 {
		return
	}
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "by %s:\n", label)
	for _, k := range keys {
		t := totals[k]
		fmt.Fprintf(w, "  %-32s %10s  %8s req  %12s tok\n", k,
			formatUSD(t.Cost), humanize.Comma(int64(t.RequestCount)), humanize.Comma(int64(t.Tokens)))
	}
}

func runEventGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	rec, err := a.detector.Get(ctx, a.userID(), args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), rec)
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		token = "ins_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if err := a.apiKeys.Create(ctx, a.userID(), token, descriptionFlag); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", token)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatUSD(v float64) string {
	return "$" + humanize.FormatFloat("#,###.####", v)
}

func formatLimit(v float64) string {
	if v <= 0 {
		return "none"
	}
	return formatUSD(v)
}
