package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/civicsignal/docket-cli/internal/model"
)

func TestMarshalXLSX(t *testing.T) {
	rows := []*model.MergedRow{
		{CommentID: "c1", LookupID: "lookup_000001", Stance: "Against", CommentCount: 2},
		{CommentID: "c2", LookupID: "lookup_000001", Stance: "Against", CommentCount: 2},
	}

	data, err := marshalXLSX(rows)
	require.NoError(t, err)

	wb, err := xlsx.OpenBinary(data)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)

	sheet := wb.Sheets[0]
	// Header row plus one row per merged row.
	require.Len(t, sheet.Rows, 3)

	var header []string
	for _, cell := range sheet.Rows[0].Cells {
		header = append(header, cell.String())
	}
	assert.Contains(t, header, "comment_id")
	assert.Contains(t, header, "stance")

	assert.Equal(t, "c1", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "c2", sheet.Rows[2].Cells[0].String())
}

func TestMarshalXLSXEmpty(t *testing.T) {
	data, err := marshalXLSX(nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")), "xlsx output is a zip archive")
}
