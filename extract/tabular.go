package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ============================================================================
// TABULAR — CSV and Excel files
// ============================================================================
// Format is decided by extension, then MIME type, then content sniffing.
// The first row is always offered as the header; the normalizer decides
// whether its cells are usable names.
// ============================================================================

type tabularFormat int

const (
	formatUnknown tabularFormat = iota
	formatCSV
	formatXLSX
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	zipMagic = "PK\x03\x04"
	utf8BOM  = "\xef\xbb\xbf"
)

// Tabular reads CSV and XLSX files.
type Tabular struct {
	sheet  string
	logger *zap.Logger
}

// NewTabular creates a tabular extractor.
func NewTabular(logger *zap.Logger) *Tabular {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tabular{logger: logger}
}

// WithSheet selects a workbook sheet by name. Empty means the first sheet
// that has any rows.
func (t *Tabular) WithSheet(name string) *Tabular {
	c := *t
	c.sheet = name
	return &c
}

// Extract reads in.Data as CSV or XLSX.
func (t *Tabular) Extract(ctx context.Context, in Input) (*RawRecordSet, error) {
	src := in.Label()
	if len(in.Data) == 0 {
		return nil, newErrorf(KindUnreadable, src, "file is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindUnreadable, src, err)
	}

	var (
		rs  *RawRecordSet
		err error
	)
	switch detectFormat(in) {
	case formatCSV:
		rs, err = readCSV(in.Data)
	case formatXLSX:
		rs, err = t.readXLSX(in.Data)
	default:
		return nil, newErrorf(KindUnsupported, src, "expected .csv or .xlsx")
	}
	if err != nil {
		return nil, newError(KindUnreadable, src, err)
	}

	rs.Source = src
	t.logger.Info("tabular extraction",
		zap.String("source", src),
		zap.Int("columns", rs.Width()),
		zap.Int("rows", len(rs.Rows)))
	return rs, nil
}

func detectFormat(in Input) tabularFormat {
	switch strings.ToLower(filepath.Ext(in.Name)) {
	case ".csv", ".tsv", ".txt":
		return formatCSV
	case ".xlsx", ".xlsm":
		return formatXLSX
	case "":
		// fall through to MIME / content checks
	default:
		return formatUnknown
	}

	mime := strings.ToLower(in.MIMEType)
	switch {
	case strings.HasPrefix(mime, "text/csv"), strings.HasPrefix(mime, "text/tab-separated-values"),
		strings.HasPrefix(mime, "application/csv"):
		return formatCSV
	case strings.HasPrefix(mime, mimeXLSX):
		return formatXLSX
	}

	if bytes.HasPrefix(in.Data, []byte(zipMagic)) {
		return formatXLSX
	}
	if strings.HasPrefix(http.DetectContentType(in.Data), "text/plain") {
		return formatCSV
	}
	return formatUnknown
}

// ============================================================================
// CSV
// ============================================================================

func readCSV(data []byte) (*RawRecordSet, error) {
	data = bytes.TrimPrefix(data, []byte(utf8BOM))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // ragged rows are the normalizer's problem

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &RawRecordSet{}, nil
	}
	if err != nil {
		return nil, err
	}

	rs := &RawRecordSet{Header: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, stringsToAny(row))
	}
	return rs, nil
}

// sniffDelimiter picks the candidate that occurs most often, outside quotes,
// on the first line. Comma wins ties.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	candidates := []rune{',', ';', '\t', '|'}
	counts := make([]int, len(candidates))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		for i, c := range candidates {
			if r == c {
				counts[i]++
			}
		}
	}

	best := 0
	for i := range candidates {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return candidates[best]
}

func stringsToAny(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// ============================================================================
// XLSX
// ============================================================================

func (t *Tabular) readXLSX(data []byte) (*RawRecordSet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if t.sheet != "" {
		sheets = []string{t.sheet}
	}

	for _, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, err
		}
		rows = dropBlankLeadingRows(rows)
		if len(rows) == 0 {
			continue
		}
		rs := &RawRecordSet{Header: rows[0]}
		for _, row := range rows[1:] {
			rs.Rows = append(rs.Rows, stringsToAny(row))
		}
		t.logger.Debug("xlsx sheet selected", zap.String("sheet", name), zap.Int("rows", len(rs.Rows)))
		return rs, nil
	}
	return &RawRecordSet{}, nil
}

func dropBlankLeadingRows(rows [][]string) [][]string {
	for len(rows) > 0 {
		blank := true
		for _, v := range rows[0] {
			if strings.TrimSpace(v) != "" {
				blank = false
				break
			}
		}
		if !blank {
			break
		}
		rows = rows[1:]
	}
	return rows
}
