package main

import (
	"context"

	"github.com/ratectl/ratectl/internal/api"
	"github.com/ratectl/ratectl/internal/cli"
	"github.com/ratectl/ratectl/internal/config"
)

// initAPI loads the configuration and returns an authenticated API client.
func initAPI(ctx context.Context) (*api.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	client, err := api.NewClient(api.Config{
		BaseURL:            cfg.Server.URL,
		Username:           cfg.Server.Username,
		Password:           cfg.Server.Password,
		Token:              cfg.Server.Token,
		Timeout:            cfg.Server.Timeout,
		InsecureSkipVerify: cfg.Server.InsecureSkipVerify,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := client.EnsureAuthenticated(ctx); err != nil {
		return nil, nil, err
	}

	return client, cfg, nil
}

// resolveCSVPath returns the file argument when given, otherwise asks the
// user to pick a file from the configured CSV directory.
func resolveCSVPath(ctx context.Context, args []string, cfg *config.Config) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	prompter := cli.NewPrompter(nil, nil)
	return prompter.SelectFile(ctx, cfg.Import.CSVDir, "*.csv")
}
