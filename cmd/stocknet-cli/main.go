package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"stocknet/internal/config"
	"stocknet/internal/store"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: stocknet-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version          Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status           Show the run marker and stored rows per date\n")
		fmt.Fprintf(os.Stderr, "  export [path]    Write every stored row to a Parquet file\n")
		fmt.Fprintf(os.Stderr, "  inspect <path>   Summarize an exported Parquet file\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("stocknet-cli %s\n", version)

	case "status":
		st := openStore()
		defer st.Close()
		if err := status(context.Background(), st); err != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
			os.Exit(1)
		}

	case "export":
		cfg := loadConfig()
		path := filepath.Join(cfg.Storage.ExportDir, fmt.Sprintf("stocknet-%s.parquet", time.Now().Format("2006-01-02")))
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		st := openStoreAt(cfg.Storage.SQLitePath)
		defer st.Close()
		n, err := store.ExportParquet(context.Background(), st, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "export: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("exported %d rows to %s\n", n, path)

	case "inspect":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "inspect: missing path\n")
			os.Exit(1)
		}
		records, err := store.ReadDataset(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
			os.Exit(1)
		}
		inspect(records)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfgPath := "config/stocknet.yaml"
	if p := os.Getenv("STOCKNET_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func openStore() *store.SQLiteStore {
	return openStoreAt(loadConfig().Storage.SQLitePath)
}

func openStoreAt(path string) *store.SQLiteStore {
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store %s: %v\n", path, err)
		os.Exit(1)
	}
	return st
}

// status prints the run marker and the row count for each stored date,
// most recent first.
func status(ctx context.Context, st *store.SQLiteStore) error {
	last, err := st.LastRunDate(ctx)
	if err != nil {
		return err
	}
	if last == "" {
		last = "never"
	}
	counts, err := st.CountByDate(ctx)
	if err != nil {
		return err
	}

	dates := make([]string, 0, len(counts))
	total := 0
	for d, n := range counts {
		dates = append(dates, d)
		total += n
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	fmt.Printf("last run:   %s\n", last)
	fmt.Printf("rows:       %d across %d dates\n", total, len(dates))
	for i, d := range dates {
		if i == 10 {
			fmt.Printf("  ... %d older dates\n", len(dates)-i)
			break
		}
		fmt.Printf("  %s  %d\n", d, counts[d])
	}
	return nil
}

// inspect prints the row, ticker and date spread of an exported dataset.
func inspect(records []store.DatasetRecord) {
	tickers := make(map[string]bool)
	first, last := "", ""
	fallback := 0
	for _, r := range records {
		tickers[r.Ticker] = true
		if first == "" || r.Date < first {
			first = r.Date
		}
		if r.Date > last {
			last = r.Date
		}
		if r.SentimentFallback {
			fallback++
		}
	}
	fmt.Printf("rows:       %d\n", len(records))
	fmt.Printf("tickers:    %d\n", len(tickers))
	if len(records) > 0 {
		fmt.Printf("dates:      %s .. %s\n", first, last)
	}
	fmt.Printf("fallback:   %d rows scored without articles\n", fallback)
}
