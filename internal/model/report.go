package model

// SubmissionSummary counts the outcomes of one submission pass.
type SubmissionSummary struct {
	Created int
	Failed  int
}

// Add folds another summary into this one.
func (s *SubmissionSummary) Add(other SubmissionSummary) {
	s.Created += other.Created
	s.Failed += other.Failed
}

// Report is the final accounting of an import run. It is always produced,
// even when every batch failed.
type Report struct {
	TotalRows  int
	Created    int
	Duplicates int
	Errors     int
}

// Summarize builds the final report from raw counters. Pure aggregation;
// callers decide what counts as an error.
func Summarize(totalRows, created, duplicates, errors int) Report {
	return Report{
		TotalRows:  totalRows,
		Created:    created,
		Duplicates: duplicates,
		Errors:     errors,
	}
}
