package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ratectl/ratectl/internal/model"
)

// PairKey identifies one account+service rate series. An empty AccountID is
// the service's list price series.
type PairKey struct {
	AccountID string
	ServiceID string
}

// LatestRate is the most recent revision of one series.
type LatestRate struct {
	Rate          decimal.Decimal
	Cogs          decimal.Decimal
	EffectiveDate string
}

// LatestRates picks the newest revision per series, comparing parsed
// effective dates. Rows with malformed ids, dates, or rate values are
// skipped; ties keep the first row seen.
func LatestRates(snap *model.Snapshot) map[PairKey]LatestRate {
	type dated struct {
		at   time.Time
		rate LatestRate
	}
	newest := make(map[PairKey]dated)

	for _, record := range snap.Records("rate") {
		serviceID := strings.TrimSpace(record["service_id"])
		if serviceID == "" {
			continue
		}
		if _, err := strconv.ParseInt(serviceID, 10, 64); err != nil {
			continue
		}

		accountID := strings.TrimSpace(record["account_id"])
		if accountID != "" {
			if _, err := strconv.ParseInt(accountID, 10, 64); err != nil {
				continue
			}
		}

		date, err := model.NormalizeDate(record["effective_date"])
		if err != nil {
			continue
		}
		at, err := model.ParseDate(date)
		if err != nil {
			continue
		}

		rate, err := decimal.NewFromString(strings.TrimSpace(record["rate"]))
		if err != nil {
			continue
		}

		cogs := decimal.Zero
		if cogsField := strings.TrimSpace(record["cogs_rate"]); cogsField != "" {
			if parsed, err := decimal.NewFromString(cogsField); err == nil {
				cogs = parsed
			}
		}

		key := PairKey{AccountID: accountID, ServiceID: serviceID}
		current, ok := newest[key]
		if !ok || at.After(current.at) {
			newest[key] = dated{at: at, rate: LatestRate{Rate: rate, Cogs: cogs, EffectiveDate: date}}
		}
	}

	out := make(map[PairKey]LatestRate, len(newest))
	for key, entry := range newest {
		out[key] = entry.rate
	}
	return out
}

// IndexationOptions describes a percentage adjustment run.
type IndexationOptions struct {
	Percent       decimal.Decimal // 5 means +5%
	EffectiveDate string          // canonical date the new revisions take effect
	ServiceIDs    []int64         // empty means all services
	AdjustCogs    bool
	ListPriceOnly bool
	AccountsOnly  bool
}

func (o IndexationOptions) factor() decimal.Decimal {
	return decimal.New(1, 0).Add(o.Percent.Div(decimal.NewFromInt(100)))
}

// BuildIndexationPlan derives new revisions from the latest revision of
// every matching series. Tiered services are skipped, and series that
// already have a revision at the target date are skipped, so rerunning the
// same indexation cannot double-apply.
func (e *Engine) BuildIndexationPlan(snap *model.Snapshot, opts IndexationOptions) ([]model.RateRecord, error) {
	if _, err := model.ParseDate(opts.EffectiveDate); err != nil {
		return nil, fmt.Errorf("invalid effective date %q: %w", opts.EffectiveDate, err)
	}
	if opts.ListPriceOnly && opts.AccountsOnly {
		return nil, fmt.Errorf("list-price-only and accounts-only are mutually exclusive")
	}

	idx := buildIndex(snap)
	latest := LatestRates(snap)
	factor := opts.factor()

	serviceFilter := make(map[string]bool, len(opts.ServiceIDs))
	for _, id := range opts.ServiceIDs {
		serviceFilter[strconv.FormatInt(id, 10)] = true
	}

	keys := make([]PairKey, 0, len(latest))
	for key := range latest {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ServiceID != keys[j].ServiceID {
			return lessNumeric(keys[i].ServiceID, keys[j].ServiceID)
		}
		return lessNumeric(keys[i].AccountID, keys[j].AccountID)
	})

	var plan []model.RateRecord
	skippedTiered, skippedExisting := 0, 0

	for _, key := range keys {
		if opts.ListPriceOnly && key.AccountID != "" {
			continue
		}
		if opts.AccountsOnly && key.AccountID == "" {
			continue
		}
		if len(serviceFilter) > 0 && !serviceFilter[key.ServiceID] {
			continue
		}
		if idx.tiered[key.ServiceID] {
			skippedTiered++
			continue
		}
		target := model.RateKey{AccountID: key.AccountID, ServiceID: key.ServiceID, EffectiveDate: opts.EffectiveDate}
		if idx.existingKeys[target] {
			skippedExisting++
			continue
		}

		current := latest[key]
		serviceID, err := strconv.ParseInt(key.ServiceID, 10, 64)
		if err != nil {
			continue
		}

		record := model.RateRecord{
			ServiceID:     serviceID,
			Rate:          current.Rate.Mul(factor),
			Cogs:          current.Cogs,
			EffectiveDate: opts.EffectiveDate,
		}
		if key.AccountID != "" {
			accountID, err := strconv.ParseInt(key.AccountID, 10, 64)
			if err != nil {
				continue
			}
			record.AccountID = &accountID
		}
		if opts.AdjustCogs {
			record.Cogs = current.Cogs.Mul(factor)
		}

		plan = append(plan, record)
	}

	e.logger.Debug("indexation plan built",
		"revisions", len(plan),
		"skipped_tiered", skippedTiered,
		"skipped_existing", skippedExisting)

	return plan, nil
}

// lessNumeric orders id strings by value when both parse, lexically
// otherwise. The empty list-price account id sorts first.
func lessNumeric(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
