package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"stocknet/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RowStore = (*SQLiteStore)(nil)
var _ RunMarker = (*SQLiteStore)(nil)

// SQLiteStore implements RowStore and RunMarker backed by a SQLite database.
// It is meant for a single writer.
type SQLiteStore struct {
	db     *sql.DB
	schema domain.Schema

	insertSQL string
	selectSQL string
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// tables for the current valuation schema and returns a ready-to-use
// SQLiteStore. Opening a database created for a different schema version
// fails.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return newSQLiteStore(dbPath, domain.ValuationSchema)
}

func newSQLiteStore(dbPath string, schema domain.Schema) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, schema: schema}
	s.buildStatements()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLiteStore) buildStatements() {
	cols := []string{"ticker", "date", "industry", "sector"}
	for _, f := range s.schema.Fields {
		cols = append(cols, quoteIdent(f))
	}
	cols = append(cols, "sentiment", "sentiment_fallback", "raw_news")

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	s.insertSQL = fmt.Sprintf(
		"INSERT INTO ticker_rows (%s) VALUES (%s) ON CONFLICT (ticker, date) DO NOTHING",
		strings.Join(cols, ", "), placeholders,
	)
	s.selectSQL = fmt.Sprintf(
		"SELECT %s FROM ticker_rows ORDER BY date, ticker",
		strings.Join(cols, ", "),
	)
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ticker_rows (\n")
	b.WriteString("\tticker TEXT NOT NULL,\n\tdate TEXT NOT NULL,\n\tindustry TEXT NOT NULL DEFAULT '',\n\tsector TEXT NOT NULL DEFAULT '',\n")
	for _, f := range s.schema.Fields {
		fmt.Fprintf(&b, "\t%s REAL,\n", quoteIdent(f))
	}
	b.WriteString("\tsentiment REAL NOT NULL,\n\tsentiment_fallback INTEGER NOT NULL DEFAULT 0,\n\traw_news BLOB,\n")
	b.WriteString("\tUNIQUE (ticker, date)\n)")

	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL
		)`,
		b.String(),
		`CREATE TABLE IF NOT EXISTS run_marker (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_run_date TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_meta (id, version) VALUES (1, ?)`, s.schema.Version); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta WHERE id = 1`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version != s.schema.Version {
		return fmt.Errorf("%w: database is v%d, binary expects v%d", domain.ErrSchemaMismatch, version, s.schema.Version)
	}
	return nil
}

// ---------------------------------------------------------------------------
// RowStore implementation
// ---------------------------------------------------------------------------

// Insert validates the row against the schema and writes it in a single
// statement. A second insert for the same (ticker, date) is a no-op that
// returns AlreadyExists.
func (s *SQLiteStore) Insert(ctx context.Context, row domain.TickerRow) (InsertResult, error) {
	if err := s.schema.Check(row); err != nil {
		return Rejected, err
	}
	if row.Ticker == "" || row.Date == "" {
		return Rejected, fmt.Errorf("%w: empty ticker or date", domain.ErrSchemaMismatch)
	}

	args := make([]any, 0, len(row.Values)+7)
	args = append(args, row.Ticker, row.Date, row.Industry, row.Sector)
	for _, v := range row.Values {
		if v == nil {
			args = append(args, nil)
		} else {
			args = append(args, *v)
		}
	}
	args = append(args, row.Sentiment, row.SentimentFallback, row.RawNews)

	res, err := s.db.ExecContext(ctx, s.insertSQL, args...)
	if err != nil {
		return Rejected, classify(fmt.Errorf("inserting %s/%s: %w", row.Ticker, row.Date, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Rejected, classify(fmt.Errorf("inserting %s/%s: %w", row.Ticker, row.Date, err))
	}
	if n == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// Exists reports whether a row for (ticker, date) is stored.
func (s *SQLiteStore) Exists(ctx context.Context, ticker, date string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM ticker_rows WHERE ticker = ? AND date = ?`, ticker, date).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, classify(fmt.Errorf("checking %s/%s: %w", ticker, date, err))
	}
	return true, nil
}

// ReadAll returns every stored row ordered by date then ticker.
func (s *SQLiteStore) ReadAll(ctx context.Context) ([]domain.TickerRow, error) {
	rows, err := s.db.QueryContext(ctx, s.selectSQL)
	if err != nil {
		return nil, classify(fmt.Errorf("reading rows: %w", err))
	}
	defer rows.Close()

	var out []domain.TickerRow
	for rows.Next() {
		row := domain.TickerRow{SchemaVersion: s.schema.Version}
		nulls := make([]sql.NullFloat64, len(s.schema.Fields))

		dest := make([]any, 0, len(nulls)+7)
		dest = append(dest, &row.Ticker, &row.Date, &row.Industry, &row.Sector)
		for i := range nulls {
			dest = append(dest, &nulls[i])
		}
		dest = append(dest, &row.Sentiment, &row.SentimentFallback, &row.RawNews)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row.Values = make([]*float64, len(nulls))
		for i, n := range nulls {
			if n.Valid {
				v := n.Float64
				row.Values[i] = &v
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("reading rows: %w", err))
	}
	return out, nil
}

// CountByDate returns the number of stored rows per date.
func (s *SQLiteStore) CountByDate(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, COUNT(*) FROM ticker_rows GROUP BY date`)
	if err != nil {
		return nil, classify(fmt.Errorf("counting rows: %w", err))
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var date string
		var n int
		if err := rows.Scan(&date, &n); err != nil {
			return nil, err
		}
		out[date] = n
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// RunMarker implementation
// ---------------------------------------------------------------------------

// LastRunDate returns the stored run marker, or "" before the first run.
func (s *SQLiteStore) LastRunDate(ctx context.Context) (string, error) {
	var date string
	err := s.db.QueryRowContext(ctx, `SELECT last_run_date FROM run_marker WHERE id = 1`).Scan(&date)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", classify(fmt.Errorf("reading run marker: %w", err))
	}
	return date, nil
}

// SetLastRunDate overwrites the run marker.
func (s *SQLiteStore) SetLastRunDate(ctx context.Context, date string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_marker (id, last_run_date) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET last_run_date = excluded.last_run_date`, date)
	if err != nil {
		return classify(fmt.Errorf("writing run marker: %w", err))
	}
	return nil
}

// classify tags errors that mean the connection itself is gone so callers
// can abort the run instead of failing a single ticker.
func classify(err error) error {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) ||
		strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if msg := err.Error(); strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}
