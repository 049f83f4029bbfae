// Package snapshot fetches, parses, and caches the platform's reference-data
// dump. The dump is a single text body with sentinel-delimited sections, one
// per model, each holding a CSV header line and CSV data lines.
package snapshot

import (
	"encoding/csv"
	"strings"

	"github.com/ratectl/ratectl/internal/model"
)

const (
	sentinelPrefix = "###model:"
	sentinelSuffix = "###"
)

// Parse converts a raw dump body into a snapshot. The format is line
// oriented: a `###model:<name>###` line opens a section, the next line is
// the header, and every following line is one CSV record. Lines that fail to
// parse or whose field count does not match the header are skipped; text
// before the first sentinel is ignored. Parse never fails; at worst it
// returns an empty snapshot.
func Parse(text string) *model.Snapshot {
	snap := model.NewSnapshot()

	var currentModel string
	var header []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if name, ok := sentinelName(line); ok {
			currentModel = name
			header = nil
			if _, exists := snap.Models[currentModel]; !exists {
				snap.Models[currentModel] = nil
			}
			continue
		}

		if currentModel == "" {
			continue
		}

		fields, err := splitCSVLine(line)
		if err != nil {
			continue
		}

		if header == nil {
			header = fields
			continue
		}

		if len(fields) != len(header) {
			continue
		}

		record := make(model.SnapshotRecord, len(header))
		for i, column := range header {
			record[column] = fields[i]
		}
		snap.Models[currentModel] = append(snap.Models[currentModel], record)
	}

	return snap
}

func sentinelName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, sentinelPrefix) || !strings.HasSuffix(trimmed, sentinelSuffix) {
		return "", false
	}
	name := trimmed[len(sentinelPrefix) : len(trimmed)-len(sentinelSuffix)]
	if name == "" {
		return "", false
	}
	return name, true
}

// splitCSVLine parses one line as a standalone CSV record so quoted fields
// with embedded commas survive. Dump records never span lines.
func splitCSVLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	return reader.Read()
}
