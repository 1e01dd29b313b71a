package helpers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/spektr-org/vizon/extract"
	"github.com/spektr-org/vizon/schema"
)

// ============================================================================
// CSV HELPER — Canonical table ⇄ CSV
// ============================================================================
// WriteCSV is the "Download CSV" export: header row of column names, then one
// record per row. Missing cells are empty, numbers carry no trailing zeros,
// dates are ISO. ReadCSV goes the other way for quick demos and tests.
// ============================================================================

// WriteCSV writes every row of t to w.
func WriteCSV(w io.Writer, t *schema.Table) error {
	_, err := WriteCSVRows(w, t, 0)
	return err
}

// WriteCSVRows writes at most maxRows rows (0 = all) and returns how many
// were written.
func WriteCSVRows(w io.Writer, t *schema.Table, maxRows int) (int, error) {
	if t == nil {
		return 0, fmt.Errorf("write csv: nil table")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	rows := t.Rows()
	if maxRows > 0 && rows > maxRows {
		rows = maxRows
	}
	record := make([]string, t.Width())
	for r := 0; r < rows; r++ {
		for c := range t.Columns {
			record[c] = t.Columns[c].Format(r)
		}
		if err := cw.Write(record); err != nil {
			return r, fmt.Errorf("write csv row %d: %w", r+1, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("write csv: %w", err)
	}
	return rows, nil
}

// CSVBytes renders t as CSV.
func CSVBytes(t *schema.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV parses CSV bytes straight into a canonical table.
// name labels the source in errors and in Table.Source.
func ReadCSV(data []byte, name string) (*schema.Table, error) {
	if name == "" {
		name = "data.csv"
	}
	raw, err := extract.NewTabular(nil).Extract(context.Background(), extract.Input{
		Name:     name,
		Data:     data,
		MIMEType: "text/csv",
	})
	if err != nil {
		return nil, err
	}
	return schema.Normalize(raw)
}
