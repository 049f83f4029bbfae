package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratectl/ratectl/internal/common"
	"github.com/ratectl/ratectl/internal/model"
)

func TestProblemLines(t *testing.T) {
	classified := []model.ClassifiedRow{
		{Row: model.CsvRow{Line: 2}, Class: model.Valid},
		{Row: model.CsvRow{Line: 3}, Class: model.MissingRequiredField, Reason: "rate is empty"},
		{Row: model.CsvRow{Line: 5}, Class: model.DuplicateExists, Reason: "revision already exists"},
		{Row: model.CsvRow{Line: 7}, Class: model.HasRateTiers, Reason: "service 42 uses rate tiers"},
	}
	skipped := []common.RowError{
		{Line: 4, Err: errors.New("wrong number of fields")},
	}

	out := problemLines(classified, skipped, 10)

	assert.Contains(t, out, "3 rows need attention:")
	assert.Contains(t, out, "line 3: rate is empty")
	assert.Contains(t, out, "line 4: wrong number of fields")
	assert.Contains(t, out, "line 7: service 42 uses rate tiers")

	// Valid and duplicate rows are not problems.
	assert.NotContains(t, out, "line 2")
	assert.NotContains(t, out, "line 5")

	// Entries come out sorted by line even though the skipped row was
	// appended after the classified ones.
	require.Less(t, strings.Index(out, "line 3"), strings.Index(out, "line 4"))
	require.Less(t, strings.Index(out, "line 4"), strings.Index(out, "line 7"))
}

func TestProblemLinesCapped(t *testing.T) {
	var classified []model.ClassifiedRow
	for line := 2; line <= 15; line++ {
		classified = append(classified, model.ClassifiedRow{
			Row:    model.CsvRow{Line: line},
			Class:  model.UnknownService,
			Reason: fmt.Sprintf("service %d not found", line),
		})
	}

	out := problemLines(classified, nil, 10)

	assert.Contains(t, out, "14 rows need attention:")
	assert.Contains(t, out, "line 11:")
	assert.NotContains(t, out, "line 12:")
	assert.Contains(t, out, "... and 4 more")
}

func TestProblemLinesEmptyWhenClean(t *testing.T) {
	classified := []model.ClassifiedRow{
		{Row: model.CsvRow{Line: 2}, Class: model.Valid},
		{Row: model.CsvRow{Line: 3}, Class: model.DuplicateExists},
	}

	assert.Empty(t, problemLines(classified, nil, 10))
}
