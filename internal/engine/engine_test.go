package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratectl/ratectl/internal/model"
)

func makeSnapshot(models map[string][]model.SnapshotRecord) *model.Snapshot {
	snap := model.NewSnapshot()
	for name, records := range models {
		snap.Models[name] = records
	}
	return snap
}

func makeRow(line int, account, service, rate, cogs, date string) model.CsvRow {
	return model.CsvRow{
		Line: line,
		Fields: map[string]string{
			"account_id":          account,
			"service_id":          service,
			"rate":                rate,
			"cogs":                cogs,
			"revision_start_date": date,
		},
	}
}

func referenceSnapshot() *model.Snapshot {
	return makeSnapshot(map[string][]model.SnapshotRecord{
		"account": {
			{"id": "10", "name": "Acme", "level": "1"},
			{"id": "11", "name": "Initech", "level": "2"},
		},
		"service": {
			{"id": "20", "description": "Compute"},
			{"id": "21", "description": "Storage"},
			{"id": "22", "description": "Tiered egress"},
		},
		"rate": {
			{"id": "1", "account_id": "10", "service_id": "20", "rate": "1.00", "cogs_rate": "0.50", "effective_date": "2023-01-01", "tier_aggregation_level": ""},
		},
		"ratetier": {
			{"id": "5", "service_id": "22"},
		},
	})
}

func TestClassifyRequiredFieldFailures(t *testing.T) {
	tests := []struct {
		name   string
		row    model.CsvRow
		reason string
	}{
		{
			name:   "empty account id",
			row:    makeRow(2, "", "20", "1.0", "0.5", "20230201"),
			reason: "account_id",
		},
		{
			name:   "non-integer account id",
			row:    makeRow(2, "acme", "20", "1.0", "0.5", "20230201"),
			reason: "account_id",
		},
		{
			name:   "empty service id",
			row:    makeRow(2, "10", "", "1.0", "0.5", "20230201"),
			reason: "service_id",
		},
		{
			name:   "non-numeric rate",
			row:    makeRow(2, "10", "20", "1,25", "0.5", "20230201"),
			reason: "rate",
		},
		{
			name:   "empty cogs",
			row:    makeRow(2, "10", "20", "1.0", "", "20230201"),
			reason: "cogs",
		},
		{
			name:   "unsupported date form",
			row:    makeRow(2, "10", "20", "1.0", "0.5", "01/02/2023"),
			reason: "date",
		},
	}

	eng := New()
	snap := referenceSnapshot()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := eng.Classify(snap, []model.CsvRow{tt.row}, DefaultOptions())
			require.Len(t, classified, 1)
			assert.Equal(t, model.MissingRequiredField, classified[0].Class)
			assert.Contains(t, classified[0].Reason, tt.reason)
			assert.Nil(t, classified[0].Record)
		})
	}
}

func TestClassifyValidRow(t *testing.T) {
	eng := New()
	classified := eng.Classify(referenceSnapshot(), []model.CsvRow{
		makeRow(2, "10", "20", "1.25", "0.80", "20230201"),
	}, DefaultOptions())

	require.Len(t, classified, 1)
	row := classified[0]
	assert.Equal(t, model.Valid, row.Class)
	require.NotNil(t, row.Record)
	assert.Equal(t, int64(10), *row.Record.AccountID)
	assert.Equal(t, int64(20), row.Record.ServiceID)
	assert.Equal(t, "1.25", row.Record.Rate.String())
	assert.Equal(t, "0.8", row.Record.Cogs.String())
	assert.Equal(t, "2023-02-01", row.Record.EffectiveDate)
	assert.Equal(t, 2, row.Record.Line)
}

func TestClassifyDuplicateAcrossDateForms(t *testing.T) {
	eng := New()

	// The snapshot stores the date dashed; the CSV uses the compact form.
	classified := eng.Classify(referenceSnapshot(), []model.CsvRow{
		makeRow(2, "10", "20", "9.99", "0.10", "20230101"),
		makeRow(3, "10", "20", "9.99", "0.10", "2023-01-01"),
	}, DefaultOptions())

	require.Len(t, classified, 2)
	assert.Equal(t, model.DuplicateExists, classified[0].Class)
	assert.Equal(t, model.DuplicateExists, classified[1].Class)
}

func TestClassifyDifferentDateIsNotDuplicate(t *testing.T) {
	eng := New()
	classified := eng.Classify(referenceSnapshot(), []model.CsvRow{
		makeRow(2, "10", "20", "1.10", "0.55", "2023-02-01"),
	}, DefaultOptions())

	assert.Equal(t, model.Valid, classified[0].Class)
}

func TestClassifyTieredService(t *testing.T) {
	eng := New()

	// Service 22 is tiered via the ratetier model; a new date and a clean
	// record do not save the row.
	classified := eng.Classify(referenceSnapshot(), []model.CsvRow{
		makeRow(2, "10", "22", "1.00", "0.50", "2024-01-01"),
	}, DefaultOptions())

	assert.Equal(t, model.HasRateTiers, classified[0].Class)
}

func TestClassifyTieredViaAggregationLevel(t *testing.T) {
	snap := referenceSnapshot()
	snap.Models["rate"] = append(snap.Models["rate"], model.SnapshotRecord{
		"id": "2", "account_id": "11", "service_id": "21", "rate": "2.00",
		"effective_date": "2023-01-01", "tier_aggregation_level": "account",
	})

	eng := New()
	classified := eng.Classify(snap, []model.CsvRow{
		makeRow(2, "10", "21", "1.00", "0.50", "2024-01-01"),
	}, DefaultOptions())

	assert.Equal(t, model.HasRateTiers, classified[0].Class)
}

func TestClassifyTierCheckPrecedesDuplicateCheck(t *testing.T) {
	snap := referenceSnapshot()
	snap.Models["rate"] = append(snap.Models["rate"], model.SnapshotRecord{
		"id": "3", "account_id": "10", "service_id": "22", "rate": "3.00",
		"effective_date": "2023-03-01", "tier_aggregation_level": "",
	})

	eng := New()

	// Row is both a duplicate of the rate above and tiered; tiers win.
	classified := eng.Classify(snap, []model.CsvRow{
		makeRow(2, "10", "22", "3.00", "0.00", "2023-03-01"),
	}, DefaultOptions())

	assert.Equal(t, model.HasRateTiers, classified[0].Class)
}

func TestClassifyExistenceChecks(t *testing.T) {
	eng := New()
	snap := referenceSnapshot()

	classified := eng.Classify(snap, []model.CsvRow{
		makeRow(2, "99", "20", "1.00", "0.50", "2024-01-01"),
		makeRow(3, "10", "99", "1.00", "0.50", "2024-01-01"),
		makeRow(4, "99", "98", "1.00", "0.50", "2024-01-01"),
	}, ValidateOptions())

	require.Len(t, classified, 3)
	assert.Equal(t, model.UnknownAccount, classified[0].Class)
	assert.Equal(t, model.UnknownService, classified[1].Class)
	// Account check runs before the service check.
	assert.Equal(t, model.UnknownAccount, classified[2].Class)
}

func TestClassifyExistenceChecksOffByDefault(t *testing.T) {
	eng := New()
	classified := eng.Classify(referenceSnapshot(), []model.CsvRow{
		makeRow(2, "99", "98", "1.00", "0.50", "2024-01-01"),
	}, DefaultOptions())

	assert.Equal(t, model.Valid, classified[0].Class)
}

func TestClassifyEmptySnapshotTreatsEverythingAsNew(t *testing.T) {
	eng := New()
	classified := eng.Classify(model.NewSnapshot(), []model.CsvRow{
		makeRow(2, "10", "20", "1.00", "0.50", "2023-01-01"),
		makeRow(3, "11", "21", "2.00", "1.00", "2023-01-01"),
	}, DefaultOptions())

	for _, row := range classified {
		assert.Equal(t, model.Valid, row.Class)
	}
}

func TestClassifyRerunAfterCreationYieldsOnlyDuplicates(t *testing.T) {
	eng := New()
	snap := referenceSnapshot()
	rows := []model.CsvRow{
		makeRow(2, "10", "20", "1.25", "0.80", "2023-02-01"),
		makeRow(3, "11", "21", "2.50", "1.10", "20230301"),
	}

	first := eng.Classify(snap, rows, DefaultOptions())
	records := ValidRecords(first)
	require.Len(t, records, 2)

	// Simulate the upstream state after a successful run.
	for _, record := range records {
		key := record.Key()
		snap.Models["rate"] = append(snap.Models["rate"], model.SnapshotRecord{
			"account_id":     key.AccountID,
			"service_id":     key.ServiceID,
			"effective_date": key.EffectiveDate,
			"rate":           record.Rate.String(),
		})
	}

	second := eng.Classify(snap, rows, DefaultOptions())
	for _, row := range second {
		assert.Equal(t, model.DuplicateExists, row.Class)
	}
	assert.Empty(t, ValidRecords(second))
}

func TestValidRecordsPreservesOrder(t *testing.T) {
	eng := New()
	classified := eng.Classify(referenceSnapshot(), []model.CsvRow{
		makeRow(2, "10", "20", "1.10", "0.50", "2023-02-01"),
		makeRow(3, "10", "20", "bad", "0.50", "2023-03-01"),
		makeRow(4, "10", "21", "1.20", "0.50", "2023-04-01"),
	}, DefaultOptions())

	records := ValidRecords(classified)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].Line)
	assert.Equal(t, 4, records[1].Line)
}

func TestCountByClass(t *testing.T) {
	eng := New()
	classified := eng.Classify(referenceSnapshot(), []model.CsvRow{
		makeRow(2, "10", "20", "1.00", "0.50", "2023-01-01"), // duplicate
		makeRow(3, "10", "20", "1.00", "0.50", "2023-02-01"), // valid
		makeRow(4, "", "20", "1.00", "0.50", "2023-02-01"),   // missing field
		makeRow(5, "10", "22", "1.00", "0.50", "2023-02-01"), // tiered
	}, DefaultOptions())

	counts := CountByClass(classified)
	assert.Equal(t, 1, counts[model.Valid])
	assert.Equal(t, 1, counts[model.DuplicateExists])
	assert.Equal(t, 1, counts[model.MissingRequiredField])
	assert.Equal(t, 1, counts[model.HasRateTiers])
}

func TestRevisionExists(t *testing.T) {
	snap := referenceSnapshot()

	assert.True(t, RevisionExists(snap, model.RateKey{AccountID: "10", ServiceID: "20", EffectiveDate: "2023-01-01"}))
	assert.False(t, RevisionExists(snap, model.RateKey{AccountID: "10", ServiceID: "20", EffectiveDate: "2023-06-01"}))
	assert.False(t, RevisionExists(snap, model.RateKey{AccountID: "", ServiceID: "20", EffectiveDate: "2023-01-01"}))
}

func TestRevisionExistsListPrice(t *testing.T) {
	snap := makeSnapshot(map[string][]model.SnapshotRecord{
		"rate": {
			{"account_id": "", "service_id": "20", "effective_date": "20230101", "rate": "1.00"},
		},
	})

	// Snapshot dates are canonicalized on the way into the key set.
	assert.True(t, RevisionExists(snap, model.RateKey{AccountID: "", ServiceID: "20", EffectiveDate: "2023-01-01"}))
}
