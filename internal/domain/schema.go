package domain

import (
	"fmt"
	"sort"
)

// Schema is the versioned, fixed-width list of valuation columns stored per
// ticker-day. Adding or removing a field is a breaking change and must bump
// Version.
type Schema struct {
	Version int
	Fields  []string
}

// ValuationSchema is the current valuation column set.
var ValuationSchema = Schema{
	Version: 1,
	Fields: []string{
		"previousClose",
		"currentPrice",
		"open",
		"dayLow",
		"dayHigh",
		"beta",
		"trailingPE",
		"forwardPE",
		"volume",
		"averageVolume",
		"averageVolume10days",
		"bid",
		"ask",
		"marketCap",
		"fiftyTwoWeekLow",
		"fiftyTwoWeekHigh",
		"priceToSalesTrailing12Months",
		"fiftyDayAverage",
		"twoHundredDayAverage",
		"profitMargins",
		"shortRatio",
		"bookValue",
		"priceToBook",
		"earningsQuarterlyGrowth",
		"epsTrailingTwelveMonths",
		"epsForward",
		"enterpriseToRevenue",
		"quickRatio",
		"currentRatio",
		"returnOnAssets",
		"returnOnEquity",
		"trailingPegRatio",
	},
}

// Len returns the number of valuation columns.
func (s Schema) Len() int { return len(s.Fields) }

// Index returns the column position of name, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// EmptyFields returns a field map that declares every column as null. Data
// sources start from this and fill in what they know.
func (s Schema) EmptyFields() map[string]*float64 {
	m := make(map[string]*float64, len(s.Fields))
	for _, f := range s.Fields {
		m[f] = nil
	}
	return m
}

// Vector converts a snapshot field map to the fixed-width column vector.
// Every schema field must be declared in fields (a nil value is an explicit
// null); missing or unknown keys yield ErrSchemaMismatch.
func (s Schema) Vector(fields map[string]*float64) ([]*float64, error) {
	var missing []string
	values := make([]*float64, len(s.Fields))
	for i, f := range s.Fields {
		v, ok := fields[f]
		if !ok {
			missing = append(missing, f)
			continue
		}
		values[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: v%d missing %v", ErrSchemaMismatch, s.Version, missing)
	}

	if len(fields) != len(s.Fields) {
		var unknown []string
		for k := range fields {
			if s.Index(k) < 0 {
				unknown = append(unknown, k)
			}
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: v%d unknown %v", ErrSchemaMismatch, s.Version, unknown)
	}
	return values, nil
}

// Check validates that a row carries exactly one value per schema column and
// was built against this schema version.
func (s Schema) Check(row TickerRow) error {
	if row.SchemaVersion != s.Version {
		return fmt.Errorf("%w: row v%d, store v%d", ErrSchemaMismatch, row.SchemaVersion, s.Version)
	}
	if len(row.Values) != len(s.Fields) {
		return fmt.Errorf("%w: %d values, schema has %d", ErrSchemaMismatch, len(row.Values), len(s.Fields))
	}
	return nil
}
