package library

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Book Id", "Title", "Author", "My Rating", "Average Rating", "Date Read"},
		{"1", "Dune", "Frank Herbert", 5, 4.27, "2023/06/10"},
		{"2", "Good Omens", "Terry Pratchett", 4, 4.24, "2023/06/11"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	table, err := ParseXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "Dune", table.Rows[0].Title)
	assert.Equal(t, 5.0, table.Rows[0].MyRating)
}

func TestParseXLSXNoHeader(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"foo", "bar"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err := ParseXLSX(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
	_, ok := err.(*SchemaError)
	assert.True(t, ok)
}
