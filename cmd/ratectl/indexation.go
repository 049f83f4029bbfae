package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ratectl/ratectl/internal/cli"
	"github.com/ratectl/ratectl/internal/engine"
	"github.com/ratectl/ratectl/internal/model"
	"github.com/ratectl/ratectl/internal/snapshot"
	"github.com/ratectl/ratectl/internal/submit"
)

const indexationPreviewLimit = 15

func indexationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexation",
		Short: "Apply a percentage change to current rates",
		Long: `Create new rate revisions by applying a percentage change to the latest
revision of every rate series.

Tiered services are skipped. Series that already have a revision at the
target date are skipped too, so rerunning the same indexation cannot
double-apply.

Examples:
  ratectl indexation --percent 5 --date 2025-01-01
  ratectl indexation --percent -2.5 --date 2025-01-01 --list-price-only
  ratectl indexation --percent 3 --date 2025-01-01 --service 20 --service 21 --adjust-cogs`,
		RunE: runIndexation,
	}

	cmd.Flags().Float64("percent", 0, "Percentage change, e.g. 5 or -2.5")
	cmd.Flags().String("date", "", "Effective date for the new revisions (YYYY-MM-DD)")
	cmd.Flags().Bool("adjust-cogs", false, "Scale COGS rates by the same percentage")
	cmd.Flags().Bool("list-price-only", false, "Only adjust list prices")
	cmd.Flags().Bool("accounts-only", false, "Only adjust account-specific rates")
	cmd.Flags().Int64Slice("service", nil, "Limit to these service IDs (repeatable)")
	cmd.Flags().Bool("dry-run", false, "Preview the plan without submitting")
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("percent")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func runIndexation(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	interruptHandler := cli.NewInterruptHandler(nil)
	ctx = interruptHandler.HandleInterrupts(ctx)

	percent, _ := cmd.Flags().GetFloat64("percent")
	dateFlag, _ := cmd.Flags().GetString("date")
	adjustCogs, _ := cmd.Flags().GetBool("adjust-cogs")
	listPriceOnly, _ := cmd.Flags().GetBool("list-price-only")
	accountsOnly, _ := cmd.Flags().GetBool("accounts-only")
	serviceIDs, _ := cmd.Flags().GetInt64Slice("service")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	yes, _ := cmd.Flags().GetBool("yes")

	date, err := model.NormalizeDate(dateFlag)
	if err != nil {
		return err
	}

	client, cfg, err := initAPI(ctx)
	if err != nil {
		return err
	}

	slog.Info(cli.FormatTitle("Planning indexation"))

	cache := snapshot.NewCache(client)
	snap, err := cache.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	if snap.Empty() {
		return fmt.Errorf("snapshot is empty, cannot plan an indexation")
	}

	plan, err := engine.New().BuildIndexationPlan(snap, engine.IndexationOptions{
		Percent:       decimal.NewFromFloat(percent),
		EffectiveDate: date,
		ServiceIDs:    serviceIDs,
		AdjustCogs:    adjustCogs,
		ListPriceOnly: listPriceOnly,
		AccountsOnly:  accountsOnly,
	})
	if err != nil {
		return err
	}

	if len(plan) == 0 {
		slog.Info(cli.FormatWarning("No rate series match, nothing to do"))
		return nil
	}

	fmt.Println(renderIndexationPlan(plan, engine.LatestRates(snap), percent, date))

	if dryRun {
		slog.Info(cli.FormatWarning(fmt.Sprintf("Dry run - %d revisions would be submitted", len(plan))))
		return nil
	}

	if !yes {
		prompter := cli.NewPrompter(nil, nil)
		confirmed, confirmErr := prompter.Confirm(ctx, fmt.Sprintf("Submit %d new revisions?", len(plan)), false)
		if confirmErr != nil {
			return confirmErr
		}
		if !confirmed {
			slog.Info(cli.FormatWarning("Indexation canceled"))
			return nil
		}
	}

	controller := submit.New(client, cache.Invalidate, cfg.Import.BatchSize, os.Stdout)
	summary, submitErr := controller.Submit(ctx, plan)

	if summary.Failed > 0 {
		slog.Warn(cli.FormatWarning(fmt.Sprintf("Created %d revisions, %d failed", summary.Created, summary.Failed)))
	} else {
		slog.Info(cli.FormatSuccess(fmt.Sprintf("Created %d revisions", summary.Created)))
	}

	if submitErr != nil && !errors.Is(submitErr, context.Canceled) {
		return submitErr
	}
	return nil
}

func renderIndexationPlan(plan []model.RateRecord, latest map[engine.PairKey]engine.LatestRate, percent float64, date string) string {
	rows := make([][]string, 0, len(plan))
	for i, record := range plan {
		if i == indexationPreviewLimit {
			break
		}

		account := "list"
		pair := engine.PairKey{ServiceID: strconv.FormatInt(record.ServiceID, 10)}
		if record.AccountID != nil {
			account = strconv.FormatInt(*record.AccountID, 10)
			pair.AccountID = account
		}

		rows = append(rows, []string{
			strconv.FormatInt(record.ServiceID, 10),
			account,
			latest[pair].Rate.String(),
			record.Rate.String(),
		})
	}

	table := cli.RenderTable([]string{"Service", "Account", "Current", "New"}, rows)
	if len(plan) > indexationPreviewLimit {
		table += fmt.Sprintf("\n... and %d more", len(plan)-indexationPreviewLimit)
	}

	title := fmt.Sprintf("Indexation %+g%% effective %s (%d revisions)", percent, date, len(plan))
	return cli.RenderBox(title, table)
}
