package dataset

import (
	"os"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
)

const (
	RegionColumn    = "Region"
	CountryColumn   = "Country"
	TotalCostColumn = "Total Cost"
	SalesColumn     = "Sales"
	ProfitColumn    = "Profit"
)

var sampleRows = []struct {
	region  string
	country string
	cost    float64
	sales   int64
	profit  float64
}{
	{"Europe", "Germany", 1200.50, 340, 310.25},
	{"Asia", "Japan", 980.10, 275, 190.75},
	{"North America", "Canada", 1530.00, 410, 422.40},
}

func SampleSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: RegionColumn, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: CountryColumn, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: TotalCostColumn, Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: SalesColumn, Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: ProfitColumn, Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
}

// NewSample builds a dataset of n rows cycling through a few sales records.
// Numeric columns vary slightly per row so encoded sizes grow with n.
func NewSample(mem memory.Allocator, n int) *Dataset {
	builder := array.NewRecordBuilder(mem, SampleSchema())
	defer builder.Release()

	region := builder.Field(0).(*array.StringBuilder)
	country := builder.Field(1).(*array.StringBuilder)
	cost := builder.Field(2).(*array.Float64Builder)
	sales := builder.Field(3).(*array.Int64Builder)
	profit := builder.Field(4).(*array.Float64Builder)

	builder.Reserve(n)
	for i := 0; i < n; i++ {
		row := sampleRows[i%len(sampleRows)]
		jitter := float64(i % 97)
		region.Append(row.region)
		country.Append(row.country)
		cost.Append(row.cost + jitter*0.25)
		sales.Append(row.sales + int64(i%31))
		profit.Append(row.profit + jitter*0.1)
	}
	return New(builder.NewRecord())
}

// GenerateSample writes a sample CSV of n records to path. An existing file
// is left untouched, in which case false is returned.
func GenerateSample(mem memory.Allocator, path string, n int) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, errors.Wrapf(err, "checking %s", path)
	}

	ds := NewSample(mem, n)
	defer ds.Release()
	if err := WriteCSV(ds, path); err != nil {
		return false, err
	}
	return true, nil
}
