package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "compact form",
			input: "20230115",
			want:  "2023-01-15",
		},
		{
			name:  "canonical form",
			input: "2023-01-15",
			want:  "2023-01-15",
		},
		{
			name:  "surrounding whitespace",
			input: "  20240601 ",
			want:  "2024-06-01",
		},
		{
			name:    "wrong length",
			input:   "2023-1-5",
			wantErr: true,
		},
		{
			name:    "eight digits but not a date",
			input:   "20231345",
			wantErr: true,
		},
		{
			name:    "dashes in wrong places",
			input:   "2023/01/15",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDate(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeDate(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeDate(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeDateBothFormsAgree(t *testing.T) {
	compact, err := NormalizeDate("20230115")
	if err != nil {
		t.Fatalf("compact form: %v", err)
	}
	dashed, err := NormalizeDate("2023-01-15")
	if err != nil {
		t.Fatalf("dashed form: %v", err)
	}
	if compact != dashed {
		t.Errorf("forms disagree: %q vs %q", compact, dashed)
	}
}

func TestRateRecordKey(t *testing.T) {
	account := int64(42)
	tests := []struct {
		name   string
		record RateRecord
		want   RateKey
	}{
		{
			name: "account rate",
			record: RateRecord{
				AccountID:     &account,
				ServiceID:     7,
				Rate:          decimal.NewFromFloat(1.25),
				EffectiveDate: "2023-01-15",
			},
			want: RateKey{AccountID: "42", ServiceID: "7", EffectiveDate: "2023-01-15"},
		},
		{
			name: "list price",
			record: RateRecord{
				ServiceID:     7,
				Rate:          decimal.NewFromFloat(1.25),
				EffectiveDate: "2023-01-15",
			},
			want: RateKey{AccountID: "", ServiceID: "7", EffectiveDate: "2023-01-15"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.Key(); got != tt.want {
				t.Errorf("Key() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRateRecordListPrice(t *testing.T) {
	account := int64(1)
	withAccount := RateRecord{AccountID: &account, ServiceID: 2}
	if withAccount.ListPrice() {
		t.Error("record with account classified as list price")
	}
	listPrice := RateRecord{ServiceID: 2}
	if !listPrice.ListPrice() {
		t.Error("record without account not classified as list price")
	}
}

func TestClassificationString(t *testing.T) {
	tests := []struct {
		class Classification
		want  string
	}{
		{Valid, "valid"},
		{DuplicateExists, "duplicate"},
		{MissingRequiredField, "missing required field"},
		{UnknownAccount, "unknown account"},
		{UnknownService, "unknown service"},
		{HasRateTiers, "has rate tiers"},
	}

	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("Classification(%d).String() = %q, want %q", int(tt.class), got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	report := Summarize(100, 60, 30, 10)
	if report.TotalRows != 100 || report.Created != 60 || report.Duplicates != 30 || report.Errors != 10 {
		t.Errorf("Summarize produced %+v", report)
	}
}

func TestSubmissionSummaryAdd(t *testing.T) {
	total := SubmissionSummary{Created: 3, Failed: 1}
	total.Add(SubmissionSummary{Created: 2, Failed: 4})
	if total.Created != 5 || total.Failed != 5 {
		t.Errorf("Add produced %+v", total)
	}
}
