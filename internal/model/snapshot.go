package model

// SnapshotRecord is one row of a dump model section, keyed by column name.
type SnapshotRecord map[string]string

// Snapshot holds the system's reference data (accounts, services, rates,
// rate tiers, ...) as flat string records grouped by model name. It lives in
// memory for at most one run and is owned by a single goroutine. A snapshot
// may be empty; callers treat missing models as zero records, which degrades
// duplicate detection to "nothing exists yet" rather than failing.
type Snapshot struct {
	Models map[string][]SnapshotRecord
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Models: make(map[string][]SnapshotRecord)}
}

// Records returns the rows of one model, nil when the model is absent.
func (s *Snapshot) Records(name string) []SnapshotRecord {
	if s == nil || s.Models == nil {
		return nil
	}
	return s.Models[name]
}

// Len returns the number of rows in one model.
func (s *Snapshot) Len(name string) int {
	return len(s.Records(name))
}

// Empty reports whether the snapshot holds no records at all.
func (s *Snapshot) Empty() bool {
	if s == nil {
		return true
	}
	for _, records := range s.Models {
		if len(records) > 0 {
			return false
		}
	}
	return true
}
