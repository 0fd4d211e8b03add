package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"tally/internal/core"
	"tally/internal/kv"
)

func TestExportCSVCoffee(t *testing.T) {
	s := openStore(t, kv.NewMemory())
	_, err := s.Add(context.Background(), NewExpense{
		Description: "Coffee",
		Amount:      decimal.RequireFromString("4.50"),
		Category:    "Food & Dining",
		Date:        core.NewDate(2024, time.January, 15),
	})
	require.NoError(t, err)

	want := `"Date","Description","Amount","Category"` + "\n" + `"1/15/2024","Coffee","4.5","Food & Dining"`
	assert.Equal(t, want, string(s.ExportCSV()))
}

func TestExportCSVEmpty(t *testing.T) {
	s := openStore(t, kv.NewMemory())
	assert.Equal(t, `"Date","Description","Amount","Category"`, string(s.ExportCSV()))
}

func TestExportCSVEscapesQuotes(t *testing.T) {
	rows := []Row{{Date: "3/1/2024", Description: `The "good" one, really`, Amount: "10", Category: "Shopping"}}
	b, err := CSVEncoder{}.EncodeRows(rows)
	require.NoError(t, err)
	assert.Equal(t,
		`"Date","Description","Amount","Category"`+"\n"+`"3/1/2024","The ""good"" one, really","10","Shopping"`,
		string(b))
}

func TestRowsKeepOrder(t *testing.T) {
	expenses := []core.Expense{
		{ID: "2", Description: "b", Amount: decimal.NewFromInt(2), Category: "Other", Date: core.NewDate(2024, 5, 2)},
		{ID: "1", Description: "a", Amount: decimal.RequireFromString("0.10"), Category: "Other", Date: core.NewDate(2023, 12, 31)},
	}
	rows := RowsOf(expenses)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Date: "5/2/2024", Description: "b", Amount: "2", Category: "Other"}, rows[0])
	assert.Equal(t, Row{Date: "12/31/2023", Description: "a", Amount: "0.1", Category: "Other"}, rows[1])
}

func TestEncoderFor(t *testing.T) {
	rows := []Row{{Date: "1/15/2024", Description: "Coffee", Amount: "4.5", Category: "Food & Dining"}}

	tests := []struct {
		format string
		ext    string
	}{
		{"", "csv"},
		{"CSV", "csv"},
		{"json", "json"},
		{"yml", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			enc, err := EncoderFor(tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.ext, enc.Extension())
			_, err = enc.EncodeRows(rows)
			assert.NoError(t, err)
		})
	}

	_, err := EncoderFor("xml")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestJSONAndYAMLEncoders(t *testing.T) {
	rows := []Row{{Date: "1/15/2024", Description: "Coffee", Amount: "4.5", Category: "Food & Dining"}}

	b, err := JSONEncoder{}.EncodeRows(rows)
	require.NoError(t, err)
	var fromJSON []Row
	require.NoError(t, json.Unmarshal(b, &fromJSON))
	assert.Equal(t, rows, fromJSON)

	b, err = YAMLEncoder{}.EncodeRows(rows)
	require.NoError(t, err)
	var fromYAML []Row
	require.NoError(t, yaml.Unmarshal(b, &fromYAML))
	assert.Equal(t, rows, fromYAML)

	b, err = JSONEncoder{}.EncodeRows(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2024, time.July, 4, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "expenses_2024-07-04.csv", ExportFilename(now, "csv"))
}
