package us

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Profile is the static classification of a ticker.
type Profile struct {
	Industry string
	Sector   string
}

// Universe is the ordered list of tickers ingested each run, with any
// classification loaded alongside it.
type Universe struct {
	Tickers  []string
	Profiles map[string]Profile
}

// LoadUniverse combines the configured ticker list with the optional CSV
// file. Symbols are upper-cased and deduplicated; order is first occurrence,
// config list first.
func LoadUniverse(tickers []string, csvPath string) (Universe, error) {
	u := Universe{Profiles: make(map[string]Profile)}
	seen := make(map[string]struct{})
	add := func(sym string) {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			return
		}
		if _, ok := seen[sym]; ok {
			return
		}
		seen[sym] = struct{}{}
		u.Tickers = append(u.Tickers, sym)
	}

	for _, t := range tickers {
		add(t)
	}

	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return Universe{}, fmt.Errorf("opening CSV %s: %w", csvPath, err)
		}
		defer f.Close()

		symbols, profiles, err := readUniverseCSV(f)
		if err != nil {
			return Universe{}, fmt.Errorf("reading CSV %s: %w", csvPath, err)
		}
		for _, s := range symbols {
			add(s)
		}
		for s, p := range profiles {
			u.Profiles[s] = p
		}
	}

	if len(u.Tickers) == 0 {
		return Universe{}, errors.New("ticker universe is empty")
	}
	return u, nil
}

// readUniverseCSV parses a header-led CSV whose first column is the symbol.
// Optional "industry" and "sector" columns are matched by header name.
func readUniverseCSV(r io.Reader) ([]string, map[string]Profile, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, nil
	}

	industryCol, sectorCol := -1, -1
	for i, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "industry":
			industryCol = i
		case "sector":
			sectorCol = i
		}
	}
	column := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	symbols := make([]string, 0, len(records)-1)
	profiles := make(map[string]Profile)
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[0]))
		if sym == "" {
			continue
		}
		symbols = append(symbols, sym)
		p := Profile{Industry: column(row, industryCol), Sector: column(row, sectorCol)}
		if p != (Profile{}) {
			profiles[sym] = p
		}
	}
	return symbols, profiles, nil
}
