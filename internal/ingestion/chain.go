package ingestion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/sheetpipe/internal/config"
	"github.com/rpattn/sheetpipe/internal/domain"
)

// TableCheck inspects a parsed table and returns nil when it passes.
type TableCheck func(domain.Table) *domain.Failure

// Chain runs the validators in a fixed order and stops at the first failure.
// Content type is checked before any parsing; checks that need rows run
// against the single parsed table.
type Chain struct {
	accepted []string
	reader   Reader
	checks   []TableCheck
}

// NewChain builds the chain for the configured MIME types and columns.
// A nil reader detects OOXML and BIFF workbooks from their signature.
func NewChain(cfg config.ExcelConfig, reader Reader) *Chain {
	if reader == nil {
		reader = WorkbookReader{}
	}
	columns := cfg.Columns()
	return &Chain{
		accepted: cfg.AcceptedTypes(),
		reader:   reader,
		checks: []TableCheck{
			CheckColumns(columns),
			CheckDates(columns[0]),
			CheckSales(columns[1]),
		},
	}
}

// Validate runs every check in order. The returned table is only meaningful
// when the failure is nil.
func (c *Chain) Validate(contentType string, data []byte) (domain.Table, *domain.Failure) {
	if failure := c.CheckContentType(contentType); failure != nil {
		return domain.Table{}, failure
	}
	table, failure := c.Parse(data)
	if failure != nil {
		return domain.Table{}, failure
	}
	if failure := c.CheckTable(table); failure != nil {
		return domain.Table{}, failure
	}
	return table, nil
}

// CheckContentType accepts exactly the two configured MIME types.
func (c *Chain) CheckContentType(contentType string) *domain.Failure {
	for _, accepted := range c.accepted {
		if contentType == accepted {
			return nil
		}
	}
	return domain.NewFailure(domain.ErrorKindUnsupportedType,
		"unsupported file type %q, expected one of %s", contentType, quoteAll(c.accepted))
}

// Parse reads data once. Reader errors carry their full trace in the message.
func (c *Chain) Parse(data []byte) (domain.Table, *domain.Failure) {
	table, err := c.reader.Read(data)
	if err != nil {
		return domain.Table{}, domain.NewFailure(domain.ErrorKindUnreadable, "%+v", err)
	}
	if table.Empty() {
		return domain.Table{}, domain.NewFailure(domain.ErrorKindEmpty, "file contains no data rows")
	}
	return table, nil
}

// CheckTable applies the table checks in order.
func (c *Chain) CheckTable(table domain.Table) *domain.Failure {
	for _, check := range c.checks {
		if failure := check(table); failure != nil {
			return failure
		}
	}
	return nil
}

// CheckColumns requires the header to equal expected exactly and in order.
// A data row wider than the header counts as an extra column.
func CheckColumns(expected []string) TableCheck {
	return func(table domain.Table) *domain.Failure {
		mismatch := func() *domain.Failure {
			return domain.NewFailure(domain.ErrorKindInvalidColumns,
				"expected columns %s in this order, got %s", quoteAll(expected), quoteAll(table.Headers))
		}
		if len(table.Headers) != len(expected) {
			return mismatch()
		}
		for i := range expected {
			if table.Headers[i] != expected[i] {
				return mismatch()
			}
		}
		for i, row := range table.Rows {
			if !isBlank(row.Extra) {
				return domain.NewFailure(domain.ErrorKindInvalidColumns,
					"expected columns %s in this order, row %d has %d unnamed extra cells",
					quoteAll(expected), i+1, len(row.Extra))
			}
		}
		return nil
	}
}

// CheckDates requires every date value to use the YYYY-MM-DD layout.
func CheckDates(column string) TableCheck {
	return func(table domain.Table) *domain.Failure {
		for i, row := range table.Rows {
			if _, err := time.Parse(domain.DateLayout, row.Date); err != nil {
				return domain.NewFailure(domain.ErrorKindInvalidData,
					"row %d: %s value %q is not a date in YYYY-MM-DD format", i+1, column, row.Date)
			}
		}
		return nil
	}
}

// CheckSales requires every sales value to be missing or a finite number.
func CheckSales(column string) TableCheck {
	return func(table domain.Table) *domain.Failure {
		for i, row := range table.Rows {
			if row.Sales == "" {
				continue
			}
			if _, ok := ParseSales(row.Sales); !ok {
				return domain.NewFailure(domain.ErrorKindInvalidData,
					"row %d: %s value %q is not a number", i+1, column, row.Sales)
			}
		}
		return nil
	}
}

// ParseSales parses a non-empty sales value, rejecting NaN and infinities.
func ParseSales(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, value := range values {
		quoted[i] = strconv.Quote(value)
	}
	return fmt.Sprintf("[%s]", strings.Join(quoted, ", "))
}
