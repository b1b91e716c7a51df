package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"stocknet/internal/domain"
)

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// DatasetRecord is the Parquet schema of the training dataset export. It
// mirrors domain.ValuationSchema v1 column for column; nil pointers are
// written as nulls.
type DatasetRecord struct {
	Ticker            string  `parquet:"ticker"`
	Date              string  `parquet:"date"`
	Industry          string  `parquet:"industry"`
	Sector            string  `parquet:"sector"`
	Sentiment         float64 `parquet:"sentiment"`
	SentimentFallback bool    `parquet:"sentiment_fallback"`
	Articles          int32   `parquet:"articles"`

	PreviousClose                *float64 `parquet:"previousClose,optional"`
	CurrentPrice                 *float64 `parquet:"currentPrice,optional"`
	Open                         *float64 `parquet:"open,optional"`
	DayLow                       *float64 `parquet:"dayLow,optional"`
	DayHigh                      *float64 `parquet:"dayHigh,optional"`
	Beta                         *float64 `parquet:"beta,optional"`
	TrailingPE                   *float64 `parquet:"trailingPE,optional"`
	ForwardPE                    *float64 `parquet:"forwardPE,optional"`
	Volume                       *float64 `parquet:"volume,optional"`
	AverageVolume                *float64 `parquet:"averageVolume,optional"`
	AverageVolume10Days          *float64 `parquet:"averageVolume10days,optional"`
	Bid                          *float64 `parquet:"bid,optional"`
	Ask                          *float64 `parquet:"ask,optional"`
	MarketCap                    *float64 `parquet:"marketCap,optional"`
	FiftyTwoWeekLow              *float64 `parquet:"fiftyTwoWeekLow,optional"`
	FiftyTwoWeekHigh             *float64 `parquet:"fiftyTwoWeekHigh,optional"`
	PriceToSalesTrailing12Months *float64 `parquet:"priceToSalesTrailing12Months,optional"`
	FiftyDayAverage              *float64 `parquet:"fiftyDayAverage,optional"`
	TwoHundredDayAverage         *float64 `parquet:"twoHundredDayAverage,optional"`
	ProfitMargins                *float64 `parquet:"profitMargins,optional"`
	ShortRatio                   *float64 `parquet:"shortRatio,optional"`
	BookValue                    *float64 `parquet:"bookValue,optional"`
	PriceToBook                  *float64 `parquet:"priceToBook,optional"`
	EarningsQuarterlyGrowth      *float64 `parquet:"earningsQuarterlyGrowth,optional"`
	EpsTrailingTwelveMonths      *float64 `parquet:"epsTrailingTwelveMonths,optional"`
	EpsForward                   *float64 `parquet:"epsForward,optional"`
	EnterpriseToRevenue          *float64 `parquet:"enterpriseToRevenue,optional"`
	QuickRatio                   *float64 `parquet:"quickRatio,optional"`
	CurrentRatio                 *float64 `parquet:"currentRatio,optional"`
	ReturnOnAssets               *float64 `parquet:"returnOnAssets,optional"`
	ReturnOnEquity               *float64 `parquet:"returnOnEquity,optional"`
	TrailingPegRatio             *float64 `parquet:"trailingPegRatio,optional"`
}

// datasetSchemaVersion is the valuation schema version DatasetRecord
// mirrors.
const datasetSchemaVersion = 1

// toDatasetRecord flattens a stored row into the export schema.
func toDatasetRecord(row domain.TickerRow, s domain.Schema) (DatasetRecord, error) {
	v := func(name string) *float64 { return row.Value(s, name) }

	articles, err := domain.DecodeArticles(row.RawNews)
	if err != nil {
		return DatasetRecord{}, fmt.Errorf("%s/%s: %w", row.Ticker, row.Date, err)
	}
	return DatasetRecord{
		Ticker:            row.Ticker,
		Date:              row.Date,
		Industry:          row.Industry,
		Sector:            row.Sector,
		Sentiment:         row.Sentiment,
		SentimentFallback: row.SentimentFallback,
		Articles:          int32(len(articles)),

		PreviousClose:                v("previousClose"),
		CurrentPrice:                 v("currentPrice"),
		Open:                         v("open"),
		DayLow:                       v("dayLow"),
		DayHigh:                      v("dayHigh"),
		Beta:                         v("beta"),
		TrailingPE:                   v("trailingPE"),
		ForwardPE:                    v("forwardPE"),
		Volume:                       v("volume"),
		AverageVolume:                v("averageVolume"),
		AverageVolume10Days:          v("averageVolume10days"),
		Bid:                          v("bid"),
		Ask:                          v("ask"),
		MarketCap:                    v("marketCap"),
		FiftyTwoWeekLow:              v("fiftyTwoWeekLow"),
		FiftyTwoWeekHigh:             v("fiftyTwoWeekHigh"),
		PriceToSalesTrailing12Months: v("priceToSalesTrailing12Months"),
		FiftyDayAverage:              v("fiftyDayAverage"),
		TwoHundredDayAverage:         v("twoHundredDayAverage"),
		ProfitMargins:                v("profitMargins"),
		ShortRatio:                   v("shortRatio"),
		BookValue:                    v("bookValue"),
		PriceToBook:                  v("priceToBook"),
		EarningsQuarterlyGrowth:      v("earningsQuarterlyGrowth"),
		EpsTrailingTwelveMonths:      v("epsTrailingTwelveMonths"),
		EpsForward:                   v("epsForward"),
		EnterpriseToRevenue:          v("enterpriseToRevenue"),
		QuickRatio:                   v("quickRatio"),
		CurrentRatio:                 v("currentRatio"),
		ReturnOnAssets:               v("returnOnAssets"),
		ReturnOnEquity:               v("returnOnEquity"),
		TrailingPegRatio:             v("trailingPegRatio"),
	}, nil
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// ExportParquet reads every row from src and writes them to a single
// Parquet file at path. It returns the number of rows written.
func ExportParquet(ctx context.Context, src RowStore, path string) (int, error) {
	if domain.ValuationSchema.Version != datasetSchemaVersion {
		return 0, fmt.Errorf("%w: export schema is v%d, valuation schema is v%d",
			domain.ErrSchemaMismatch, datasetSchemaVersion, domain.ValuationSchema.Version)
	}

	rows, err := src.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading rows: %w", err)
	}

	records := make([]DatasetRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := toDatasetRecord(r, domain.ValuationSchema)
		if err != nil {
			return 0, fmt.Errorf("exporting row: %w", err)
		}
		records = append(records, rec)
	}
	if err := writeParquetFile(path, records); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(records), nil
}

// ReadDataset loads an exported dataset file.
func ReadDataset(path string) ([]DatasetRecord, error) {
	records, err := readParquetFile[DatasetRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
