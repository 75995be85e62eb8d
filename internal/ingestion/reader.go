package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// table is a header-indexed CSV reader.
type table struct {
	file    string
	reader  *csv.Reader
	columns map[string]int
	line    int
}

// newTable reads the header row and verifies the required columns.
// A leading UTF-8 or UTF-16 byte order mark is consumed.
func newTable(r io.Reader, file string, required []string) (*table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", file, ErrEmptyInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", file, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, &MissingColumnError{File: file, Column: name}
		}
	}

	return &table{file: file, reader: cr, columns: columns, line: 1}, nil
}

// next returns the next non-blank row, or io.EOF.
func (t *table) next() ([]string, error) {
	for {
		rec, err := t.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%s: %w", t.file, err)
		}
		t.line, _ = t.reader.FieldPos(0)
		if blank(rec) {
			continue
		}
		return rec, nil
	}
}

// cell returns the value of column in rec, empty if the row is short.
func (t *table) cell(rec []string, column string) string {
	i, ok := t.columns[column]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func (t *table) parseErr(rec []string, column string, err error) *ParseError {
	return &ParseError{
		File:   t.file,
		Line:   t.line,
		Column: column,
		Value:  t.cell(rec, column),
		Err:    err,
	}
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
