package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for anything other than .xlsx or .csv.
var ErrUnsupportedFormat = errors.New("spreadsheet: only .xlsx and .csv files are supported")

// Row is one data row keyed by header. Line is the 1-based line in the
// source sheet, so the first data row is line 2.
type Row struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value for column.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// Read parses the first sheet of an .xlsx workbook or a .csv file. The first
// row is the header. Blank rows are skipped.
func Read(r io.Reader, filename string) ([]Row, error) {
	var records [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		wb, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer wb.Close() //nolint:errcheck
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		records, err = wb.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
		}
	case ".csv":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		var err error
		records, err = reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
	default:
		return nil, ErrUnsupportedFormat
	}
	return toRows(records), nil
}

func toRows(records [][]string) []Row {
	if len(records) == 0 {
		return nil
	}
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		values := make(map[string]string, len(headers))
		blank := true
		for j, cell := range record {
			if j >= len(headers) || headers[j] == "" {
				continue
			}
			values[headers[j]] = cell
			if strings.TrimSpace(cell) != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		rows = append(rows, Row{Line: i + 2, Values: values})
	}
	return rows
}
