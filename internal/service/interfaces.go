// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/ratectl/ratectl/internal/model"
)

// DumpFetcher retrieves the raw reference-data dump from the platform.
type DumpFetcher interface {
	// FetchDump requests the dump for the given model names and returns the
	// raw sentinel-delimited body.
	FetchDump(ctx context.Context, models []string, progress bool) (string, error)
}

// SnapshotSource provides the current system snapshot for reconciliation
// decisions. Implementations memoize; Invalidate forces the next Snapshot
// call to fetch fresh data.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*model.Snapshot, error)
	Invalidate()
}

// RateWriter creates rate revisions upstream.
type RateWriter interface {
	// CreateRateBatch submits all records in one atomic multi-operation
	// request and returns how many result entries carried a created payload.
	CreateRateBatch(ctx context.Context, records []model.RateRecord) (int, error)
	// CreateRate submits a single record, falling through the client's
	// submission strategies until one succeeds.
	CreateRate(ctx context.Context, record model.RateRecord) error
}

// Prompter asks the user questions and collects answers.
type Prompter interface {
	// Confirm asks a yes/no question and returns the answer.
	Confirm(ctx context.Context, question string, defaultYes bool) (bool, error)
	// SelectFile lets the user choose a file matching pattern inside dir.
	SelectFile(ctx context.Context, dir, pattern string) (string, error)
}
