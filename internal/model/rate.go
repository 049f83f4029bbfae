// Package model defines the core domain types for rate synchronization.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical effective-date form used for keys, payloads,
// and ordering comparisons.
const DateLayout = "2006-01-02"

const compactDateLayout = "20060102"

// NormalizeDate converts an effective date to canonical YYYY-MM-DD form.
// Two input forms are accepted: 8-digit YYYYMMDD and YYYY-MM-DD. Anything
// else is an error; dates are canonicalized once, at the edge.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	var layout string
	switch len(s) {
	case len(compactDateLayout):
		layout = compactDateLayout
	case len(DateLayout):
		layout = DateLayout
	default:
		return "", fmt.Errorf("invalid date %q: want YYYYMMDD or YYYY-MM-DD", s)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.Format(DateLayout), nil
}

// ParseDate parses a canonical effective date. Ordering decisions (latest
// revision per key) compare parsed dates, never raw strings.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// RateKey identifies a rate revision: one (account, service, effective date)
// triple, all as strings. AccountID is empty for list prices. Existence of a
// key upstream is binary; how many revisions share it does not matter.
type RateKey struct {
	AccountID     string
	ServiceID     string
	EffectiveDate string
}

func (k RateKey) String() string {
	account := k.AccountID
	if account == "" {
		account = "list"
	}
	return fmt.Sprintf("account=%s service=%s date=%s", account, k.ServiceID, k.EffectiveDate)
}

// RateRecord is a single rate revision to be created upstream.
type RateRecord struct {
	AccountID     *int64 // nil means list price
	ServiceID     int64
	Rate          decimal.Decimal
	Cogs          decimal.Decimal
	EffectiveDate string // canonical YYYY-MM-DD
	Line          int    // 1-based CSV line, 0 when not file-sourced
}

// Key returns the duplicate-detection key for the record.
func (r *RateRecord) Key() RateKey {
	var account string
	if r.AccountID != nil {
		account = strconv.FormatInt(*r.AccountID, 10)
	}
	return RateKey{
		AccountID:     account,
		ServiceID:     strconv.FormatInt(r.ServiceID, 10),
		EffectiveDate: r.EffectiveDate,
	}
}

// ListPrice reports whether the record targets the service's list price
// rather than an account-specific rate.
func (r *RateRecord) ListPrice() bool {
	return r.AccountID == nil
}

// Classification is the outcome of reconciling one CSV row against the
// current system snapshot. Exactly one classification applies per row.
type Classification int

const (
	// Valid rows are new and ready to submit.
	Valid Classification = iota
	// DuplicateExists marks rows whose key already has a revision upstream.
	DuplicateExists
	// MissingRequiredField marks rows with absent or unparseable required fields.
	MissingRequiredField
	// UnknownAccount marks rows referencing an account the system does not know.
	UnknownAccount
	// UnknownService marks rows referencing a service the system does not know.
	UnknownService
	// HasRateTiers marks rows whose service uses tiered rating, which single
	// rate revisions cannot represent.
	HasRateTiers
)

func (c Classification) String() string {
	switch c {
	case Valid:
		return "valid"
	case DuplicateExists:
		return "duplicate"
	case MissingRequiredField:
		return "missing required field"
	case UnknownAccount:
		return "unknown account"
	case UnknownService:
		return "unknown service"
	case HasRateTiers:
		return "has rate tiers"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// CsvRow is one data row from an imported CSV file, values trimmed and keyed
// by header column name.
type CsvRow struct {
	Line   int // 1-based line in the source file
	Fields map[string]string
}

// Field returns the value of a column, "" when absent.
func (r CsvRow) Field(name string) string {
	return r.Fields[name]
}

// ClassifiedRow pairs a CSV row with its reconciliation outcome. Classified
// rows live for one run and are never persisted.
type ClassifiedRow struct {
	Row    CsvRow
	Record *RateRecord // populated only for Valid rows
	Class  Classification
	Reason string // human-readable detail for non-valid rows
}
