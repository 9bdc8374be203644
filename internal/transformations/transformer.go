package transformations

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rpattn/sheetpipe/internal/config"
	"github.com/rpattn/sheetpipe/internal/domain"
	"github.com/rpattn/sheetpipe/internal/ingestion"
)

// Transformer turns a validated table into the corrected sales series and
// stages it as a workbook in the output directory.
type Transformer struct {
	dateColumn  string
	salesColumn string
	outputDir   string
}

func NewTransformer(cfg config.ExcelConfig) *Transformer {
	return &Transformer{
		dateColumn:  cfg.ColumnDate,
		salesColumn: cfg.ColumnSales,
		outputDir:   cfg.FolderPath,
	}
}

// OutputDir is where promoted files are written.
func (t *Transformer) OutputDir() string {
	return t.outputDir
}

// Transform parses dates, orders rows by date and fills interior gaps.
// The table has already passed validation, so any parse error here is a defect.
func (t *Transformer) Transform(table domain.Table) (domain.SalesSeries, error) {
	points := make([]domain.SalesPoint, len(table.Rows))
	for i, row := range table.Rows {
		date, err := time.Parse(domain.DateLayout, row.Date)
		if err != nil {
			return domain.SalesSeries{}, errors.Wrapf(err, "row %d: parse date", i+1)
		}
		points[i].Date = date

		if row.Sales == "" {
			continue
		}
		value, ok := ingestion.ParseSales(row.Sales)
		if !ok {
			return domain.SalesSeries{}, errors.Newf("row %d: parse sales value %q", i+1, row.Sales)
		}
		points[i].Sales = &value
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	series := domain.SalesSeries{
		DateColumn:  t.dateColumn,
		SalesColumn: t.salesColumn,
		Points:      points,
	}
	filled := Interpolate(series.Values())
	for i := range series.Points {
		series.Points[i].Sales = filled[i]
	}
	return series, nil
}
