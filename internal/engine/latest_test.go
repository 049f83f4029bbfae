package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratectl/ratectl/internal/model"
)

func ratesSnapshot() *model.Snapshot {
	return makeSnapshot(map[string][]model.SnapshotRecord{
		"rate": {
			{"account_id": "10", "service_id": "20", "rate": "1.00", "cogs_rate": "0.40", "effective_date": "2023-01-01"},
			{"account_id": "10", "service_id": "20", "rate": "1.20", "cogs_rate": "0.50", "effective_date": "20230915"},
			{"account_id": "10", "service_id": "20", "rate": "1.10", "cogs_rate": "0.45", "effective_date": "2023-06-01"},
			{"account_id": "", "service_id": "20", "rate": "2.00", "cogs_rate": "", "effective_date": "2023-03-01"},
			{"account_id": "11", "service_id": "21", "rate": "5.00", "cogs_rate": "2.00", "effective_date": "2022-01-01"},
		},
	})
}

func TestLatestRatesPicksNewestByParsedDate(t *testing.T) {
	latest := LatestRates(ratesSnapshot())

	entry, ok := latest[PairKey{AccountID: "10", ServiceID: "20"}]
	require.True(t, ok)
	assert.Equal(t, "2023-09-15", entry.EffectiveDate)
	assert.True(t, entry.Rate.Equal(decimal.RequireFromString("1.20")))
	assert.True(t, entry.Cogs.Equal(decimal.RequireFromString("0.50")))
}

func TestLatestRatesKeepsListPriceSeries(t *testing.T) {
	latest := LatestRates(ratesSnapshot())

	entry, ok := latest[PairKey{AccountID: "", ServiceID: "20"}]
	require.True(t, ok)
	assert.Equal(t, "2023-03-01", entry.EffectiveDate)
	assert.True(t, entry.Cogs.IsZero())
}

func TestLatestRatesSkipsMalformedRows(t *testing.T) {
	snap := makeSnapshot(map[string][]model.SnapshotRecord{
		"rate": {
			{"account_id": "10", "service_id": "", "rate": "1.00", "effective_date": "2023-01-01"},
			{"account_id": "abc", "service_id": "20", "rate": "1.00", "effective_date": "2023-01-01"},
			{"account_id": "10", "service_id": "20", "rate": "not-a-rate", "effective_date": "2023-01-01"},
			{"account_id": "10", "service_id": "20", "rate": "1.00", "effective_date": "soon"},
			{"account_id": "10", "service_id": "20", "rate": "1.00", "effective_date": "2023-05-01"},
		},
	})

	latest := LatestRates(snap)
	require.Len(t, latest, 1)
	assert.Equal(t, "2023-05-01", latest[PairKey{AccountID: "10", ServiceID: "20"}].EffectiveDate)
}

func indexationSnapshot() *model.Snapshot {
	return makeSnapshot(map[string][]model.SnapshotRecord{
		"rate": {
			{"account_id": "10", "service_id": "20", "rate": "1.00", "cogs_rate": "0.40", "effective_date": "2023-01-01"},
			{"account_id": "11", "service_id": "20", "rate": "2.00", "cogs_rate": "0.80", "effective_date": "2023-02-01"},
			{"account_id": "", "service_id": "21", "rate": "4.00", "cogs_rate": "1.00", "effective_date": "2023-01-01"},
			{"account_id": "10", "service_id": "22", "rate": "9.00", "cogs_rate": "3.00", "effective_date": "2023-01-01"},
		},
		"ratetier": {
			{"id": "5", "service_id": "22"},
		},
	})
}

func TestBuildIndexationPlan(t *testing.T) {
	eng := New()
	plan, err := eng.BuildIndexationPlan(indexationSnapshot(), IndexationOptions{
		Percent:       decimal.NewFromInt(5),
		EffectiveDate: "2024-01-01",
	})
	require.NoError(t, err)

	// Tiered service 22 is excluded; the other three series are adjusted.
	require.Len(t, plan, 3)

	// Deterministic order: by service, then account with list price first.
	assert.Nil(t, plan[2].AccountID)
	assert.Equal(t, int64(21), plan[2].ServiceID)

	first := plan[0]
	require.NotNil(t, first.AccountID)
	assert.Equal(t, int64(10), *first.AccountID)
	assert.Equal(t, int64(20), first.ServiceID)
	assert.True(t, first.Rate.Equal(decimal.RequireFromString("1.05")), "rate %s", first.Rate)
	assert.True(t, first.Cogs.Equal(decimal.RequireFromString("0.40")), "cogs unchanged by default")
	assert.Equal(t, "2024-01-01", first.EffectiveDate)

	second := plan[1]
	require.NotNil(t, second.AccountID)
	assert.Equal(t, int64(11), *second.AccountID)
	assert.True(t, second.Rate.Equal(decimal.RequireFromString("2.10")))
}

func TestBuildIndexationPlanAdjustsCogsWhenAsked(t *testing.T) {
	eng := New()
	plan, err := eng.BuildIndexationPlan(indexationSnapshot(), IndexationOptions{
		Percent:       decimal.NewFromInt(10),
		EffectiveDate: "2024-01-01",
		AdjustCogs:    true,
		ServiceIDs:    []int64{20},
	})
	require.NoError(t, err)

	require.Len(t, plan, 2)
	assert.True(t, plan[0].Cogs.Equal(decimal.RequireFromString("0.44")), "cogs %s", plan[0].Cogs)
}

func TestBuildIndexationPlanSkipsExistingTargetDate(t *testing.T) {
	snap := indexationSnapshot()
	snap.Models["rate"] = append(snap.Models["rate"], model.SnapshotRecord{
		"account_id": "10", "service_id": "20", "rate": "1.05", "effective_date": "2024-01-01",
	})

	eng := New()
	plan, err := eng.BuildIndexationPlan(snap, IndexationOptions{
		Percent:       decimal.NewFromInt(5),
		EffectiveDate: "2024-01-01",
	})
	require.NoError(t, err)

	for _, record := range plan {
		if record.AccountID != nil && *record.AccountID == 10 && record.ServiceID == 20 {
			t.Fatalf("series with existing target revision was re-planned: %+v", record)
		}
	}
}

func TestBuildIndexationPlanListPriceOnly(t *testing.T) {
	eng := New()
	plan, err := eng.BuildIndexationPlan(indexationSnapshot(), IndexationOptions{
		Percent:       decimal.NewFromInt(5),
		EffectiveDate: "2024-01-01",
		ListPriceOnly: true,
	})
	require.NoError(t, err)

	require.Len(t, plan, 1)
	assert.Nil(t, plan[0].AccountID)
	assert.Equal(t, int64(21), plan[0].ServiceID)
	assert.True(t, plan[0].Rate.Equal(decimal.RequireFromString("4.20")))
}

func TestBuildIndexationPlanAccountsOnly(t *testing.T) {
	eng := New()
	plan, err := eng.BuildIndexationPlan(indexationSnapshot(), IndexationOptions{
		Percent:       decimal.NewFromInt(5),
		EffectiveDate: "2024-01-01",
		AccountsOnly:  true,
	})
	require.NoError(t, err)

	for _, record := range plan {
		assert.NotNil(t, record.AccountID)
	}
}

func TestBuildIndexationPlanNegativePercent(t *testing.T) {
	eng := New()
	plan, err := eng.BuildIndexationPlan(indexationSnapshot(), IndexationOptions{
		Percent:       decimal.NewFromInt(-10),
		EffectiveDate: "2024-01-01",
		ServiceIDs:    []int64{21},
	})
	require.NoError(t, err)

	require.Len(t, plan, 1)
	assert.True(t, plan[0].Rate.Equal(decimal.RequireFromString("3.60")), "rate %s", plan[0].Rate)
}

func TestBuildIndexationPlanRejectsBadInput(t *testing.T) {
	eng := New()

	_, err := eng.BuildIndexationPlan(indexationSnapshot(), IndexationOptions{
		Percent:       decimal.NewFromInt(5),
		EffectiveDate: "20240101",
	})
	assert.Error(t, err, "date must be canonical")

	_, err = eng.BuildIndexationPlan(indexationSnapshot(), IndexationOptions{
		Percent:       decimal.NewFromInt(5),
		EffectiveDate: "2024-01-01",
		ListPriceOnly: true,
		AccountsOnly:  true,
	})
	assert.Error(t, err)
}
