package domain

import "time"

// DateLayout is the only accepted layout for values in the date column.
const DateLayout = "2006-01-02"

// Row is one data row as read from the upload, before any coercion.
type Row struct {
	Date  string
	Sales string
	// Extra holds cells found beyond the two expected columns.
	Extra []string
}

// Table is the parsed upload. It is built once per run and must not be mutated afterwards.
type Table struct {
	Headers []string
	Rows    []Row
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Empty reports whether the table has no data rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// SalesPoint is one corrected row. Sales is nil when the value is missing and could not be interpolated.
type SalesPoint struct {
	Date  time.Time
	Sales *float64
}

// SalesSeries is the transformer output ordered by date.
type SalesSeries struct {
	DateColumn  string
	SalesColumn string
	Points      []SalesPoint
}

// Values returns the sales column as a slice of optional values.
func (s SalesSeries) Values() []*float64 {
	values := make([]*float64, len(s.Points))
	for i, point := range s.Points {
		values[i] = point.Sales
	}
	return values
}
