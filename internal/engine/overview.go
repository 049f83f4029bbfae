package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/ratectl/ratectl/internal/model"
)

// Overview aggregates what the snapshot knows about the system.
type Overview struct {
	AccountsByLevel  map[string]int
	TopLevelAccounts []string
	Accounts         int
	Services         int
	Rates            int
	RatedServices    int
	EarliestRate     string
	LatestRate       string
}

// BuildOverview summarizes the snapshot. Rate date bounds compare parsed
// dates; rows with unusable dates still count toward the totals.
func BuildOverview(snap *model.Snapshot) Overview {
	overview := Overview{AccountsByLevel: make(map[string]int)}

	for _, record := range snap.Records("account") {
		overview.Accounts++
		level := strings.TrimSpace(record["level"])
		if level == "" {
			level = "unknown"
		}
		overview.AccountsByLevel[level]++
		if level == "1" {
			if name := strings.TrimSpace(record["name"]); name != "" {
				overview.TopLevelAccounts = append(overview.TopLevelAccounts, name)
			}
		}
	}
	sort.Strings(overview.TopLevelAccounts)

	overview.Services = snap.Len("service")

	rated := make(map[string]bool)
	var earliest, latest time.Time
	for _, record := range snap.Records("rate") {
		overview.Rates++
		if serviceID := strings.TrimSpace(record["service_id"]); serviceID != "" {
			rated[serviceID] = true
		}

		date, err := model.NormalizeDate(record["effective_date"])
		if err != nil {
			continue
		}
		at, err := model.ParseDate(date)
		if err != nil {
			continue
		}
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
			overview.EarliestRate = date
		}
		if latest.IsZero() || at.After(latest) {
			latest = at
			overview.LatestRate = date
		}
	}
	overview.RatedServices = len(rated)

	return overview
}
