package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ratectl/ratectl/internal/cli"
	"github.com/ratectl/ratectl/internal/engine"
	"github.com/ratectl/ratectl/internal/model"
	"github.com/ratectl/ratectl/internal/snapshot"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether a rate revision exists",
		Long: `Check whether the platform already has a rate revision for a service and
effective date. Omit --account to check the service's list price.

Examples:
  ratectl status --service 20 --date 2024-01-01
  ratectl status --account 10 --service 20 --date 20240101`,
		RunE: runStatus,
	}

	cmd.Flags().Int64("account", 0, "Account ID (omit for the list price)")
	cmd.Flags().Int64("service", 0, "Service ID")
	cmd.Flags().String("date", "", "Effective date (YYYY-MM-DD or YYYYMMDD)")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("date")

	_ = viper.BindPFlag("status.account", cmd.Flags().Lookup("account"))
	_ = viper.BindPFlag("status.service", cmd.Flags().Lookup("service"))
	_ = viper.BindPFlag("status.date", cmd.Flags().Lookup("date"))

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	date, err := model.NormalizeDate(viper.GetString("status.date"))
	if err != nil {
		return err
	}

	key := model.RateKey{
		ServiceID:     strconv.FormatInt(viper.GetInt64("status.service"), 10),
		EffectiveDate: date,
	}
	if account := viper.GetInt64("status.account"); account > 0 {
		key.AccountID = strconv.FormatInt(account, 10)
	}

	client, _, err := initAPI(ctx)
	if err != nil {
		return err
	}

	snap, err := snapshot.NewCache(client).Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	if snap.Empty() {
		slog.Warn(cli.FormatWarning("Snapshot is empty, existence cannot be determined"))
		return nil
	}

	if engine.RevisionExists(snap, key) {
		slog.Info(cli.FormatSuccess(fmt.Sprintf("Revision exists: %s", key)))
	} else {
		slog.Info(cli.FormatWarning(fmt.Sprintf("No revision: %s", key)))
	}

	return nil
}
