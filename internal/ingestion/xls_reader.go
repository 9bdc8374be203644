package ingestion

import (
	"bytes"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/extrame/xls"

	"github.com/rpattn/sheetpipe/internal/domain"
)

// XLSReader reads the first sheet of a legacy BIFF (.xls) workbook with the
// same header and blank row rules as ExcelReader. Date cells come out as
// YYYY-MM-DD.
type XLSReader struct{}

var _ Reader = XLSReader{}

func (XLSReader) Read(data []byte) (table domain.Table, err error) {
	// the BIFF decoder indexes records without bounds checks
	defer func() {
		if rec := recover(); rec != nil {
			table, err = domain.Table{}, errors.Newf("failed to decode xls workbook: %v", rec)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return domain.Table{}, errors.Wrap(err, "failed to open xls workbook")
	}
	if wb.NumSheets() == 0 {
		return domain.Table{}, errors.New("workbook has no sheets")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return domain.Table{}, errors.New("failed to read first sheet")
	}

	records := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		records = append(records, xlsRecord(row))
	}
	return normalizeTable(records), nil
}

// biffMaxColumns is the column limit of a BIFF8 sheet.
const biffMaxColumns = 256

// xlsRecord reads a row up to its recorded width. Writers that omit ROW
// records leave the width at zero, so those rows are scanned in full.
func xlsRecord(row *xls.Row) []string {
	width := row.LastCol()
	if width <= 0 {
		width = biffMaxColumns
	}
	record := make([]string, width)
	last := 0
	for c := range record {
		record[c] = xlsCellValue(row.Col(c))
		if record[c] != "" {
			last = c + 1
		}
	}
	return record[:last]
}

// xlsCellValue maps the decoder's timestamp rendering of date cells back to YYYY-MM-DD.
func xlsCellValue(raw string) string {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format(domain.DateLayout)
	}
	return raw
}
