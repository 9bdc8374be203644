// Package testutil builds spreadsheet fixtures for package tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// XLSX renders rows (the first being the header) into workbook bytes.
func XLSX(t testing.TB, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &values))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// EmptyXLSX returns a workbook whose only sheet has no cells.
func EmptyXLSX(t testing.TB) []byte {
	return XLSX(t)
}
