package ingestion

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/sheetpipe/internal/domain"
)

// Reader turns raw upload bytes into a table. Implementations must not
// have side effects, so a run can parse exactly once and share the result.
type Reader interface {
	Read(data []byte) (domain.Table, error)
}

// oleMagic starts every OLE2 compound file, which is how BIFF (.xls) workbooks are stored.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// WorkbookReader picks the reader from the file signature: OLE2 files go to
// XLS, everything else to Excel.
type WorkbookReader struct {
	Excel Reader
	XLS   Reader
}

var _ Reader = WorkbookReader{}

func (w WorkbookReader) Read(data []byte) (domain.Table, error) {
	if bytes.HasPrefix(data, oleMagic) {
		if w.XLS != nil {
			return w.XLS.Read(data)
		}
		return XLSReader{}.Read(data)
	}
	if w.Excel != nil {
		return w.Excel.Read(data)
	}
	return ExcelReader{}.Read(data)
}

// ExcelReader reads the first sheet of an OOXML workbook. The first
// non-empty row is the header. Cells are read by stored value, so number
// formats never leak into the text and date cells come out as YYYY-MM-DD.
type ExcelReader struct{}

var _ Reader = ExcelReader{}

func (ExcelReader) Read(data []byte) (domain.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return domain.Table{}, errors.Wrap(err, "failed to open workbook")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.Table{}, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return domain.Table{}, errors.Wrapf(err, "failed to read rows from sheet %q", sheets[0])
	}

	cells, err := newSheetCells(f, sheets[0])
	if err != nil {
		return domain.Table{}, err
	}
	for r, row := range rows {
		for c, raw := range row {
			value, err := cells.value(c+1, r+1, raw)
			if err != nil {
				return domain.Table{}, err
			}
			row[c] = value
		}
	}
	return normalizeTable(rows), nil
}

// sheetCells resolves raw cell text into the value a reader of the sheet would see.
type sheetCells struct {
	f          *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool
}

func newSheetCells(f *excelize.File, sheet string) (*sheetCells, error) {
	props, err := f.GetWorkbookProps()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read workbook properties")
	}
	return &sheetCells{
		f:          f,
		sheet:      sheet,
		date1904:   props.Date1904 != nil && *props.Date1904,
		dateStyles: make(map[int]bool),
	}, nil
}

func (s *sheetCells) value(col, row int, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return raw, nil
	}
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", errors.Wrapf(err, "cell at column %d row %d", col, row)
	}
	cellType, err := s.f.GetCellType(s.sheet, ref)
	if err != nil {
		return "", errors.Wrapf(err, "read type of %s", ref)
	}

	switch cellType {
	case excelize.CellTypeDate:
		if t, ok := parseISODateTime(raw); ok {
			return t.Format(domain.DateLayout), nil
		}
		return raw, nil
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return raw, nil
		}
		isDate, err := s.hasDateStyle(ref)
		if err != nil || !isDate {
			return raw, err
		}
		t, err := excelize.ExcelDateToTime(serial, s.date1904)
		if err != nil {
			return raw, nil
		}
		return t.Format(domain.DateLayout), nil
	default:
		return raw, nil
	}
}

func (s *sheetCells) hasDateStyle(ref string) (bool, error) {
	styleID, err := s.f.GetCellStyle(s.sheet, ref)
	if err != nil {
		return false, errors.Wrapf(err, "read style of %s", ref)
	}
	if isDate, ok := s.dateStyles[styleID]; ok {
		return isDate, nil
	}
	isDate := false
	if style, err := s.f.GetStyle(styleID); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		} else {
			isDate = isDateNumFmt(style.NumFmt)
		}
	}
	s.dateStyles[styleID] = isDate
	return isDate, nil
}

// isDateNumFmt reports whether a built-in number format shows a calendar date.
// Time-only formats are not dates.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 31, id >= 34 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode looks for day or year tokens outside literals and
// bracketed sections such as colors and locales.
func isDateFormatCode(code string) bool {
	var quoted, bracketed, escaped bool
	for _, r := range strings.ToLower(code) {
		switch {
		case escaped:
			escaped = false
		case quoted:
			quoted = r != '"'
		case bracketed:
			bracketed = r != ']'
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = true
		case r == '[':
			bracketed = true
		case r == 'd', r == 'y':
			return true
		}
	}
	return false
}

var isoDateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	domain.DateLayout,
}

func parseISODateTime(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	for _, layout := range isoDateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func normalizeTable(records [][]string) domain.Table {
	var (
		table     domain.Table
		headerSet bool
	)
	for _, record := range records {
		if isBlank(record) {
			continue
		}
		if !headerSet {
			table.Headers = append([]string(nil), record...)
			headerSet = true
			continue
		}
		table.Rows = append(table.Rows, toRow(record))
	}
	return table
}

func toRow(record []string) domain.Row {
	cells := padRow(record, 2)
	row := domain.Row{
		Date:  strings.TrimSpace(cells[0]),
		Sales: strings.TrimSpace(cells[1]),
	}
	if len(cells) > 2 {
		row.Extra = append([]string(nil), cells[2:]...)
	}
	return row
}

// padRow extends row to at least length cells; wider rows are returned intact.
func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
