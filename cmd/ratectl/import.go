package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ratectl/ratectl/internal/api"
	"github.com/ratectl/ratectl/internal/cli"
	"github.com/ratectl/ratectl/internal/config"
	"github.com/ratectl/ratectl/internal/engine"
	"github.com/ratectl/ratectl/internal/ingest"
	"github.com/ratectl/ratectl/internal/model"
	"github.com/ratectl/ratectl/internal/snapshot"
	"github.com/ratectl/ratectl/internal/submit"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file.csv]",
		Short: "Import rate revisions from a CSV rate sheet",
		Long: `Import rate revisions from a CSV rate sheet.

Rows whose account, service, and effective date revision already exists on
the platform are skipped, so re-running the same file is safe. Without a
file argument the configured CSV directory is listed interactively.

Examples:
  ratectl import rates_2024.csv
  ratectl import --dry-run rates_2024.csv
  ratectl import --yes --batch-size 25 rates_2024.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Int("batch-size", config.DefaultBatchSize, "Rate revisions per atomic batch")
	cmd.Flags().Bool("dry-run", false, "Classify and report without submitting")
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	// Bind to viper (errors are rare and can be ignored in practice)
	_ = viper.BindPFlag("import.batch_size", cmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("import.dry_run", cmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("import.yes", cmd.Flags().Lookup("yes"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	interruptHandler := cli.NewInterruptHandler(nil)
	ctx = interruptHandler.HandleInterrupts(ctx)

	client, cfg, err := initAPI(ctx)
	if err != nil {
		return err
	}

	path, err := resolveCSVPath(ctx, args, cfg)
	if err != nil {
		return err
	}

	slog.Info(cli.FormatTitle("Importing rate revisions"))

	file, err := ingest.Load(path)
	if err != nil {
		return err
	}
	slog.Info("Loaded rate sheet",
		"file", filepath.Base(file.Path),
		"encoding", file.Encoding,
		"rows", file.TotalRows(),
		"unparsable", len(file.Skipped))

	cache := snapshot.NewCache(client)
	return importFlow(ctx, client, cfg, cache, file)
}

// importFlow classifies the loaded sheet against the snapshot and submits
// what the platform does not have yet. validate --import reuses it with an
// already warmed cache.
func importFlow(ctx context.Context, client *api.Client, cfg *config.Config, cache *snapshot.Cache, file *ingest.File) error {
	snap, err := cache.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	classified := engine.New().Classify(snap, file.Rows, engine.DefaultOptions())
	counts := engine.CountByClass(classified)
	records := engine.ValidRecords(classified)
	duplicates := counts[model.DuplicateExists]

	fmt.Println(renderRateSheet(file, duplicates, len(records)))

	if len(records) == 0 {
		slog.Info(cli.FormatSuccess("Nothing to submit, the platform is up to date"))
		fmt.Println(renderReport(model.Summarize(
			file.TotalRows(), 0, duplicates, file.TotalRows()-duplicates)))
		return nil
	}

	if viper.GetBool("import.dry_run") {
		slog.Info(cli.FormatWarning(fmt.Sprintf("Dry run - %d rate revisions would be submitted", len(records))))
		return nil
	}

	if !viper.GetBool("import.yes") {
		prompter := cli.NewPrompter(nil, nil)
		question := fmt.Sprintf("Submit %d rate revisions to %s?", len(records), cfg.Server.URL)
		confirmed, confirmErr := prompter.Confirm(ctx, question, true)
		if confirmErr != nil {
			return confirmErr
		}
		if !confirmed {
			slog.Info(cli.FormatWarning("Submission canceled"))
			return nil
		}
	}

	controller := submit.New(client, cache.Invalidate, cfg.Import.BatchSize, os.Stdout)
	summary, submitErr := controller.Submit(ctx, records)

	// The report is printed even when submission broke off partway.
	report := model.Summarize(
		file.TotalRows(),
		summary.Created,
		duplicates,
		file.TotalRows()-summary.Created-duplicates,
	)
	fmt.Println(renderReport(report))

	if submitErr != nil {
		if errors.Is(submitErr, context.Canceled) {
			slog.Warn("Submission interrupted, already-created revisions stay committed")
			return nil
		}
		return submitErr
	}

	slog.Info(cli.FormatSuccess("Import complete"))
	return nil
}

func renderRateSheet(file *ingest.File, duplicates, valid int) string {
	problems := file.TotalRows() - valid - duplicates

	content := fmt.Sprintf(`File: %s (%s)
Rows: %d

New revisions: %d
Already on platform: %d
Problem rows: %d`,
		filepath.Base(file.Path), file.Encoding, file.TotalRows(),
		valid, duplicates, problems)

	return cli.RenderBox("Rate sheet", content)
}

func renderReport(report model.Report) string {
	content := fmt.Sprintf(`Total rows: %d
Created: %d
Skipped duplicates: %d
Errors: %d`,
		report.TotalRows, report.Created, report.Duplicates, report.Errors)

	return cli.RenderBox("Import report", content)
}
