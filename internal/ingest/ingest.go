// Package ingest loads rate CSV files with encoding fallback. Real import
// files arrive from spreadsheets on several platforms, so decoding tries a
// fixed list of encodings until one produces a usable header.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/ratectl/ratectl/internal/common"
	"github.com/ratectl/ratectl/internal/model"
)

// RequiredColumns are the header columns every import file must carry,
// matched exactly after trimming. Extra columns are ignored.
var RequiredColumns = []string{"account_id", "service_id", "rate", "cogs", "revision_start_date"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// File is one loaded CSV file. Rows holds every parseable data row in file
// order starting at line 2; Skipped holds the lines the CSV reader could not
// parse at all. Skipped lines count as errors in the final report but never
// abort the load.
type File struct {
	Path     string
	Encoding string
	Header   []string
	Rows     []model.CsvRow
	Skipped  []common.RowError
}

// TotalRows is the number of data rows the file contained, parseable or not.
func (f *File) TotalRows() int {
	return len(f.Rows) + len(f.Skipped)
}

type decoding struct {
	decode func([]byte) (string, error)
	name   string
}

// decodings returns the fallback chain in order. Plain UTF-8 is strict so a
// cp1252 file is never silently mis-decoded; the BOM variant is kept for
// parity with the sources that emit one.
func decodings() []decoding {
	return []decoding{
		{name: "utf-8", decode: decodeUTF8},
		{name: "utf-8-sig", decode: decodeUTF8SIG},
		{name: "cp1252", decode: charmapDecoding(charmap.Windows1252)},
		{name: "iso-8859-1", decode: charmapDecoding(charmap.ISO8859_1)},
	}
}

func decodeUTF8(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", errors.New("invalid UTF-8")
	}
	return string(raw), nil
}

func decodeUTF8SIG(raw []byte) (string, error) {
	return decodeUTF8(bytes.TrimPrefix(raw, utf8BOM))
}

func charmapDecoding(cm *charmap.Charmap) func([]byte) (string, error) {
	return func(raw []byte) (string, error) {
		decoded, err := cm.NewDecoder().Bytes(raw)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}
}

// Load reads one CSV file, trying each encoding until one both decodes the
// content and yields a header containing every required column. The file is
// read once; rows come back in file order.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var lastMissing []string
	var lastEncoding string

	for _, enc := range decodings() {
		text, err := enc.decode(raw)
		if err != nil {
			continue
		}

		file, missing, err := parseCSV(path, enc.name, text)
		if err != nil {
			lastEncoding = enc.name
			continue
		}
		if len(missing) > 0 {
			lastMissing = missing
			lastEncoding = enc.name
			continue
		}

		slog.Debug("CSV loaded", "path", path, "encoding", enc.name, "rows", len(file.Rows), "skipped", len(file.Skipped))
		return file, nil
	}

	return nil, &common.FormatError{Path: path, Encoding: lastEncoding, Missing: lastMissing}
}

// parseCSV parses decoded text. A nil error with a non-empty missing list
// means the text decoded fine but the header lacks required columns, so the
// caller should try the next encoding.
func parseCSV(path, encoding, text string) (*File, []string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	headerFields, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	header := make([]string, 0, len(headerFields))
	for _, field := range headerFields {
		header = append(header, cleanField(field))
	}

	if missing := missingColumns(header); len(missing) > 0 {
		return nil, missing, nil
	}

	file := &File{Path: path, Encoding: encoding, Header: header}

	// Data rows are numbered from 2, line 1 being the header.
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			file.Skipped = append(file.Skipped, common.RowError{Line: line, Err: err})
			continue
		}

		fields := make(map[string]string, len(header))
		for i, column := range header {
			if i < len(record) {
				fields[column] = cleanField(record[i])
			}
		}
		file.Rows = append(file.Rows, model.CsvRow{Line: line, Fields: fields})
	}

	return file, nil, nil
}

// cleanField trims whitespace and strips stray byte order marks. Some
// exporters put a BOM in front of the first header column.
func cleanField(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "﻿", ""))
}

func missingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, column := range header {
		present[column] = true
	}

	var missing []string
	for _, column := range RequiredColumns {
		if !present[column] {
			missing = append(missing, column)
		}
	}
	return missing
}
