// Package engine reconciles rate rows against the system snapshot. It
// classifies CSV rows for import, answers revision-existence questions, and
// plans indexation runs. All decisions are deterministic key lookups; the
// engine never talks to the network.
package engine

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ratectl/ratectl/internal/model"
)

// Options controls which checks run during classification. One engine serves
// both the import flow (existence checks off, failures surface at submission
// time) and the validate flow (existence checks on).
type Options struct {
	ExcludeTieredServices bool
	CheckAccountsExist    bool
	CheckServicesExist    bool
}

// DefaultOptions returns the import-flow options.
func DefaultOptions() Options {
	return Options{ExcludeTieredServices: true}
}

// ValidateOptions returns the validate-flow options, which also verify that
// referenced accounts and services exist.
func ValidateOptions() Options {
	return Options{
		ExcludeTieredServices: true,
		CheckAccountsExist:    true,
		CheckServicesExist:    true,
	}
}

// Engine classifies rows against a snapshot.
type Engine struct {
	logger *slog.Logger
}

// New creates a reconciliation engine.
func New() *Engine {
	return &Engine{logger: slog.Default().With("component", "engine")}
}

// snapshotIndex holds the lookup sets derived from one snapshot.
type snapshotIndex struct {
	accounts     map[string]bool
	services     map[string]bool
	tiered       map[string]bool
	existingKeys map[model.RateKey]bool
}

// buildIndex derives the lookup sets. Rate keys are canonicalized as they
// enter the set; a snapshot date that fits neither accepted form is kept raw
// so exact matches still hit.
func buildIndex(snap *model.Snapshot) *snapshotIndex {
	idx := &snapshotIndex{
		accounts:     make(map[string]bool),
		services:     make(map[string]bool),
		tiered:       make(map[string]bool),
		existingKeys: make(map[model.RateKey]bool),
	}

	for _, record := range snap.Records("account") {
		if id := strings.TrimSpace(record["id"]); id != "" {
			idx.accounts[id] = true
		}
	}

	for _, record := range snap.Records("service") {
		if id := strings.TrimSpace(record["id"]); id != "" {
			idx.services[id] = true
		}
	}

	for _, record := range snap.Records("ratetier") {
		if serviceID := strings.TrimSpace(record["service_id"]); serviceID != "" {
			idx.tiered[serviceID] = true
		}
	}

	for _, record := range snap.Records("rate") {
		serviceID := strings.TrimSpace(record["service_id"])
		if serviceID != "" && strings.TrimSpace(record["tier_aggregation_level"]) != "" {
			idx.tiered[serviceID] = true
		}
		if key, ok := rateKeyFromRecord(record); ok {
			idx.existingKeys[key] = true
		}
	}

	return idx
}

func rateKeyFromRecord(record model.SnapshotRecord) (model.RateKey, bool) {
	serviceID := strings.TrimSpace(record["service_id"])
	if serviceID == "" {
		return model.RateKey{}, false
	}

	date := strings.TrimSpace(record["effective_date"])
	if normalized, err := model.NormalizeDate(date); err == nil {
		date = normalized
	}

	return model.RateKey{
		AccountID:     strings.TrimSpace(record["account_id"]),
		ServiceID:     serviceID,
		EffectiveDate: date,
	}, true
}

// Classify reconciles every row against the snapshot. Checks run in a fixed
// order and the first hit wins, so each row gets exactly one classification:
// required fields, then account/service existence when enabled, then rate
// tiers, then duplicates. Whatever remains is valid.
func (e *Engine) Classify(snap *model.Snapshot, rows []model.CsvRow, opts Options) []model.ClassifiedRow {
	idx := buildIndex(snap)

	classified := make([]model.ClassifiedRow, 0, len(rows))
	for _, row := range rows {
		classified = append(classified, classifyRow(idx, row, opts))
	}

	counts := CountByClass(classified)
	e.logger.Debug("rows classified",
		"total", len(classified),
		"valid", counts[model.Valid],
		"duplicates", counts[model.DuplicateExists],
		"errors", len(classified)-counts[model.Valid]-counts[model.DuplicateExists])

	return classified
}

func classifyRow(idx *snapshotIndex, row model.CsvRow, opts Options) model.ClassifiedRow {
	record, reason := parseRecord(row)
	if record == nil {
		return model.ClassifiedRow{Row: row, Class: model.MissingRequiredField, Reason: reason}
	}

	key := record.Key()

	if opts.CheckAccountsExist && !idx.accounts[key.AccountID] {
		return model.ClassifiedRow{Row: row, Class: model.UnknownAccount, Reason: fmt.Sprintf("account %s not found in system", key.AccountID)}
	}
	if opts.CheckServicesExist && !idx.services[key.ServiceID] {
		return model.ClassifiedRow{Row: row, Class: model.UnknownService, Reason: fmt.Sprintf("service %s not found in system", key.ServiceID)}
	}
	if opts.ExcludeTieredServices && idx.tiered[key.ServiceID] {
		return model.ClassifiedRow{Row: row, Class: model.HasRateTiers, Reason: fmt.Sprintf("service %s uses rate tiers", key.ServiceID)}
	}
	if idx.existingKeys[key] {
		return model.ClassifiedRow{Row: row, Class: model.DuplicateExists, Reason: fmt.Sprintf("revision for %s already exists", key.String())}
	}

	return model.ClassifiedRow{Row: row, Record: record, Class: model.Valid}
}

// parseRecord runs the required-field check: both ids must parse as
// integers, rate and cogs as decimals, and the date in one of the two
// accepted forms. The reason names the first offending field.
func parseRecord(row model.CsvRow) (*model.RateRecord, string) {
	accountField := row.Field("account_id")
	if accountField == "" {
		return nil, "account_id is required"
	}
	accountID, err := strconv.ParseInt(accountField, 10, 64)
	if err != nil {
		return nil, fmt.Sprintf("account_id %q is not an integer", accountField)
	}

	serviceField := row.Field("service_id")
	if serviceField == "" {
		return nil, "service_id is required"
	}
	serviceID, err := strconv.ParseInt(serviceField, 10, 64)
	if err != nil {
		return nil, fmt.Sprintf("service_id %q is not an integer", serviceField)
	}

	rateField := row.Field("rate")
	if rateField == "" {
		return nil, "rate is required"
	}
	rate, err := decimal.NewFromString(rateField)
	if err != nil {
		return nil, fmt.Sprintf("rate %q is not a number", rateField)
	}

	cogsField := row.Field("cogs")
	if cogsField == "" {
		return nil, "cogs is required"
	}
	cogs, err := decimal.NewFromString(cogsField)
	if err != nil {
		return nil, fmt.Sprintf("cogs %q is not a number", cogsField)
	}

	date, err := model.NormalizeDate(row.Field("revision_start_date"))
	if err != nil {
		return nil, err.Error()
	}

	return &model.RateRecord{
		AccountID:     &accountID,
		ServiceID:     serviceID,
		Rate:          rate,
		Cogs:          cogs,
		EffectiveDate: date,
		Line:          row.Line,
	}, ""
}

// CountByClass tallies classifications for reporting.
func CountByClass(rows []model.ClassifiedRow) map[model.Classification]int {
	counts := make(map[model.Classification]int)
	for _, row := range rows {
		counts[row.Class]++
	}
	return counts
}

// ValidRecords extracts the submittable records from classified rows,
// preserving file order.
func ValidRecords(rows []model.ClassifiedRow) []model.RateRecord {
	var records []model.RateRecord
	for _, row := range rows {
		if row.Class == model.Valid && row.Record != nil {
			records = append(records, *row.Record)
		}
	}
	return records
}

// RevisionExists reports whether the snapshot already holds a revision for
// the key. The key's date must be canonical.
func RevisionExists(snap *model.Snapshot, key model.RateKey) bool {
	return buildIndex(snap).existingKeys[key]
}
