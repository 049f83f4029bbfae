package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ratectl/ratectl/internal/cli"
	"github.com/ratectl/ratectl/internal/common"
	"github.com/ratectl/ratectl/internal/engine"
	"github.com/ratectl/ratectl/internal/ingest"
	"github.com/ratectl/ratectl/internal/model"
	"github.com/ratectl/ratectl/internal/snapshot"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file.csv]",
		Short: "Check a CSV rate sheet without submitting",
		Long: `Validate a CSV rate sheet against the platform.

Every row is classified: new revision, already on the platform, missing
required fields, unknown account or service, or backed by a tiered service.
Nothing is submitted unless --import is given.

Examples:
  ratectl validate rates_2024.csv
  ratectl validate --import rates_2024.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: runValidate,
	}

	cmd.Flags().Bool("import", false, "Continue into the import flow after validation")

	_ = viper.BindPFlag("validate.import", cmd.Flags().Lookup("import"))

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, cfg, err := initAPI(ctx)
	if err != nil {
		return err
	}

	path, err := resolveCSVPath(ctx, args, cfg)
	if err != nil {
		return err
	}

	slog.Info(cli.FormatTitle("Validating rate sheet"))

	file, err := ingest.Load(path)
	if err != nil {
		return err
	}

	cache := snapshot.NewCache(client)
	snap, err := cache.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	classified := engine.New().Classify(snap, file.Rows, engine.ValidateOptions())
	counts := engine.CountByClass(classified)

	fmt.Println(renderBreakdown(file, counts))

	if problems := problemLines(classified, file.Skipped, 10); problems != "" {
		fmt.Println(problems)
	}

	if counts[model.Valid] == len(file.Rows) && len(file.Skipped) == 0 {
		slog.Info(cli.FormatSuccess("Every row is a new, submittable revision"))
	}

	if viper.GetBool("validate.import") {
		// The warmed cache serves the import pass, no second dump fetch.
		return importFlow(ctx, client, cfg, cache, file)
	}

	return nil
}

func renderBreakdown(file *ingest.File, counts map[model.Classification]int) string {
	rows := [][]string{
		{"New revisions", strconv.Itoa(counts[model.Valid])},
		{"Already on platform", strconv.Itoa(counts[model.DuplicateExists])},
		{"Missing required fields", strconv.Itoa(counts[model.MissingRequiredField])},
		{"Unknown account", strconv.Itoa(counts[model.UnknownAccount])},
		{"Unknown service", strconv.Itoa(counts[model.UnknownService])},
		{"Tiered service", strconv.Itoa(counts[model.HasRateTiers])},
		{"Unparsable lines", strconv.Itoa(len(file.Skipped))},
	}

	title := fmt.Sprintf("Validation of %s (%d rows)", filepath.Base(file.Path), file.TotalRows())
	return cli.RenderBox(title, cli.RenderTable([]string{"Result", "Rows"}, rows))
}

// problemLines lists the rows that would not be submitted, oldest line
// first, capped at limit.
func problemLines(classified []model.ClassifiedRow, skipped []common.RowError, limit int) string {
	type problem struct {
		reason string
		line   int
	}

	var problems []problem
	for _, row := range classified {
		if row.Class == model.Valid || row.Class == model.DuplicateExists {
			continue
		}
		problems = append(problems, problem{line: row.Row.Line, reason: row.Reason})
	}
	for _, rowErr := range skipped {
		problems = append(problems, problem{line: rowErr.Line, reason: rowErr.Err.Error()})
	}
	if len(problems) == 0 {
		return ""
	}

	sort.Slice(problems, func(i, j int) bool { return problems[i].line < problems[j].line })

	var b strings.Builder
	b.WriteString(cli.FormatWarning(fmt.Sprintf("%d rows need attention:", len(problems))))
	b.WriteString("\n")
	for i, p := range problems {
		if i == limit {
			fmt.Fprintf(&b, "  ... and %d more\n", len(problems)-limit)
			break
		}
		fmt.Fprintf(&b, "  line %d: %s\n", p.line, p.reason)
	}

	return strings.TrimRight(b.String(), "\n")
}
