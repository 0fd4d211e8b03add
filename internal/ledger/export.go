package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tally/internal/core"
)

// Header is the first line of every CSV export.
var Header = []string{"Date", "Description", "Amount", "Category"}

// Row is one exported expense, already formatted.
type Row struct {
	Date        string `json:"date" yaml:"date"`
	Description string `json:"description" yaml:"description"`
	Amount      string `json:"amount" yaml:"amount"`
	Category    string `json:"category" yaml:"category"`
}

func (r Row) Values() []string {
	return []string{r.Date, r.Description, r.Amount, r.Category}
}

// RowsOf formats expenses for export, keeping their order.
func RowsOf(expenses []core.Expense) []Row {
	rows := make([]Row, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, Row{
			Date:        e.Date.Format(core.ExportDateLayout),
			Description: e.Description,
			Amount:      e.Amount.String(),
			Category:    e.Category,
		})
	}
	return rows
}

// Rows returns the store's records as export rows.
func (s *Store) Rows() []Row {
	return RowsOf(s.Expenses())
}

// ExportCSV renders the store's records as CSV.
func (s *Store) ExportCSV() []byte {
	b, _ := CSVEncoder{}.EncodeRows(s.Rows())
	return b
}

// ExportFilename names an export file after the day it was taken.
func ExportFilename(now time.Time, ext string) string {
	return fmt.Sprintf("expenses_%s.%s", now.Format(core.DateLayout), ext)
}

// Encoder turns export rows into a file body.
type Encoder interface {
	EncodeRows(rows []Row) ([]byte, error)
	ContentType() string
	Extension() string
}

// EncoderFor picks an encoder by name; empty means CSV.
func EncoderFor(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return CSVEncoder{}, nil
	case "json":
		return JSONEncoder{}, nil
	case "yaml", "yml":
		return YAMLEncoder{}, nil
	default:
		return nil, &core.ValidationError{Field: "format", Reason: fmt.Sprintf("unsupported export format %q", format)}
	}
}

// CSVEncoder quotes every field and joins lines with \n, without a trailing
// newline. encoding/csv only quotes when needed, so lines are built by hand.
type CSVEncoder struct{}

func (CSVEncoder) EncodeRows(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	writeCSVLine(&buf, Header)
	for _, r := range rows {
		buf.WriteByte('\n')
		writeCSVLine(&buf, r.Values())
	}
	return buf.Bytes(), nil
}

func (CSVEncoder) ContentType() string { return "text/csv; charset=utf-8" }
func (CSVEncoder) Extension() string   { return "csv" }

func writeCSVLine(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		buf.WriteByte('"')
	}
}

type JSONEncoder struct{}

func (JSONEncoder) EncodeRows(rows []Row) ([]byte, error) {
	if rows == nil {
		rows = []Row{}
	}
	return json.MarshalIndent(rows, "", "  ")
}

func (JSONEncoder) ContentType() string { return "application/json" }
func (JSONEncoder) Extension() string   { return "json" }

type YAMLEncoder struct{}

func (YAMLEncoder) EncodeRows(rows []Row) ([]byte, error) {
	if rows == nil {
		rows = []Row{}
	}
	return yaml.Marshal(rows)
}

func (YAMLEncoder) ContentType() string { return "application/yaml" }
func (YAMLEncoder) Extension() string   { return "yaml" }
