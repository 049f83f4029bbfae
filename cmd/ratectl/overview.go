package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ratectl/ratectl/internal/cli"
	"github.com/ratectl/ratectl/internal/engine"
	"github.com/ratectl/ratectl/internal/snapshot"
)

func overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Summarize accounts, services, and rates on the platform",
		RunE:  runOverview,
	}
}

func runOverview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	client, _, err := initAPI(ctx)
	if err != nil {
		return err
	}

	slog.Info(cli.FormatTitle("Fetching platform overview"))

	snap, err := snapshot.NewCache(client).Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	if snap.Empty() {
		slog.Warn(cli.FormatWarning("Snapshot is empty, nothing to summarize"))
		return nil
	}

	overview := engine.BuildOverview(snap)

	content := fmt.Sprintf(`Accounts: %d
Services: %d (%d with rates)
Rate revisions: %d`,
		overview.Accounts, overview.Services, overview.RatedServices, overview.Rates)
	if overview.EarliestRate != "" {
		content += fmt.Sprintf("\nRevision dates: %s to %s", overview.EarliestRate, overview.LatestRate)
	}

	fmt.Println(cli.RenderBox(cli.ChartIcon+" Platform overview", content))

	if len(overview.AccountsByLevel) > 0 {
		levels := make([]string, 0, len(overview.AccountsByLevel))
		for level := range overview.AccountsByLevel {
			levels = append(levels, level)
		}
		sort.Strings(levels)

		rows := make([][]string, 0, len(levels))
		for _, level := range levels {
			rows = append(rows, []string{level, strconv.Itoa(overview.AccountsByLevel[level])})
		}
		fmt.Println(cli.RenderTable([]string{"Level", "Accounts"}, rows))
	}

	if len(overview.TopLevelAccounts) > 0 {
		fmt.Println()
		fmt.Println(cli.SubtitleStyle.Render("Top level accounts:"))
		for _, name := range overview.TopLevelAccounts {
			fmt.Printf("  • %s\n", name)
		}
	}

	return nil
}
