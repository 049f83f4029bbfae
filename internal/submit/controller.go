// Package submit drives batch creation of rate revisions upstream.
package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/ratectl/ratectl/internal/common"
	"github.com/ratectl/ratectl/internal/model"
	"github.com/ratectl/ratectl/internal/service"
)

const defaultBatchSize = 50

// Controller submits validated records in bounded batches. A failed batch
// falls back to per-record submission so one bad row cannot sink its
// batchmates, and later batches always proceed. Batches already accepted
// upstream stay committed; a rerun relies on duplicate detection to skip
// them.
type Controller struct {
	writer     service.RateWriter
	invalidate func()
	logger     *slog.Logger
	progress   io.Writer
	batchSize  int
}

// New creates a submission controller. invalidate runs once after the
// final batch so the next snapshot read reflects the writes; progress may be
// nil for stdout.
func New(writer service.RateWriter, invalidate func(), batchSize int, progress io.Writer) *Controller {
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	if progress == nil {
		progress = os.Stdout
	}
	return &Controller{
		writer:     writer,
		invalidate: invalidate,
		logger:     slog.Default().With("component", "submit"),
		progress:   progress,
		batchSize:  batchSize,
	}
}

// Submit creates every record upstream and reports how many were created.
// Only authentication failures and context cancellation abort the run;
// anything else is counted and worked around.
func (c *Controller) Submit(ctx context.Context, records []model.RateRecord) (model.SubmissionSummary, error) {
	var summary model.SubmissionSummary
	if len(records) == 0 {
		return summary, nil
	}

	// Whatever happens past this point may have written rates, so the
	// cached snapshot can no longer be trusted.
	defer func() {
		if c.invalidate != nil {
			c.invalidate()
		}
	}()

	bar := c.newProgressBar(len(records))

	for start := 0; start < len(records); start += c.batchSize {
		end := start + c.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := ctx.Err(); err != nil {
			return summary, err
		}

		created, err := c.writer.CreateRateBatch(ctx, batch)
		if err != nil {
			if errors.Is(err, common.ErrUnauthorized) {
				return summary, err
			}
			c.logger.Warn("batch rejected, retrying rows individually",
				"batch_size", len(batch), "error", err)

			fallback, fallbackErr := c.submitIndividually(ctx, batch, bar)
			summary.Add(fallback)
			if fallbackErr != nil {
				return summary, fallbackErr
			}
			continue
		}

		summary.Created += created
		summary.Failed += len(batch) - created
		_ = bar.Add(len(batch))
	}

	c.logger.Info("submission finished", "created", summary.Created, "failed", summary.Failed)
	return summary, nil
}

// submitIndividually retries a rejected batch one record at a time, counting
// each outcome.
func (c *Controller) submitIndividually(ctx context.Context, batch []model.RateRecord, bar *progressbar.ProgressBar) (model.SubmissionSummary, error) {
	var summary model.SubmissionSummary

	for _, record := range batch {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if err := c.writer.CreateRate(ctx, record); err != nil {
			if errors.Is(err, common.ErrUnauthorized) {
				return summary, err
			}
			summary.Failed++
			c.logger.Warn("rate not created", "line", record.Line, "key", record.Key().String(), "error", err)
		} else {
			summary.Created++
		}
		_ = bar.Add(1)
	}

	return summary, nil
}

func (c *Controller) newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.progress),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Submitting rate revisions...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(c.progress); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
