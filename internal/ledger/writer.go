package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hedge-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const defaultTimeout = 5 * time.Second

type batch struct {
	table Table
	rows  []Row
}

// Writer appends rows to per-account tables. Appends that fail are kept in
// memory and retried by Flush, so a row may be written more than once when a
// failure is reported after the commit succeeded.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	driver  string
	schema  string
	timeout time.Duration

	mu      sync.Mutex
	pending []batch
}

func Open(cfg config.LedgerConfig, dsn string, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("ledger dsn is required")
	}
	var driverName string
	switch cfg.Driver {
	case "pgx":
		driverName = "pgx"
	case "sqlite":
		driverName = "sqlite"
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, err
				}
			}
		}
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", cfg.Driver)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Writer{
		db:      db,
		log:     log,
		driver:  cfg.Driver,
		schema:  strings.TrimSpace(cfg.Schema),
		timeout: timeout,
	}, nil
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnsureSchema creates the schema and tables if they do not exist.
func (w *Writer) EnsureSchema(ctx context.Context, tables ...Table) error {
	if w.driver == "pgx" && w.schema != "" && w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quote(w.schema))); err != nil {
			return err
		}
	}
	for _, t := range tables {
		defs := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			def := quote(c.Name) + " " + w.sqlType(c.kind) + " NOT NULL"
			if c.unique {
				def += " UNIQUE"
			}
			defs = append(defs, def)
		}
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", w.table(t.Name), strings.Join(defs, ",\n\t"))
		if err := w.exec(ctx, query); err != nil {
			return fmt.Errorf("create %s: %w", t.Name, err)
		}
	}
	return nil
}

// Append writes rows in one transaction. On failure the batch is queued for
// Flush and the error is returned.
func (w *Writer) Append(ctx context.Context, t Table, rows ...Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := w.insert(ctx, t, rows); err != nil {
		w.mu.Lock()
		w.pending = append(w.pending, batch{table: t, rows: rows})
		w.mu.Unlock()
		return fmt.Errorf("append %s: %w", t.Name, err)
	}
	return nil
}

// Flush retries queued batches in order and keeps the ones that still fail.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	queued := w.pending
	w.pending = nil
	w.mu.Unlock()

	var errs []error
	var failed []batch
	for _, b := range queued {
		if err := w.insert(ctx, b.table, b.rows); err != nil {
			failed = append(failed, b)
			errs = append(errs, fmt.Errorf("flush %s: %w", b.table.Name, err))
			continue
		}
		w.log.Info("ledger batch flushed", zap.String("table", b.table.Name), zap.Int("rows", len(b.rows)))
	}
	if len(failed) > 0 {
		w.mu.Lock()
		w.pending = append(failed, w.pending...)
		w.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Pending returns the number of queued rows.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.pending {
		n += len(b.rows)
	}
	return n
}

// LastTime returns the newest ts in t, or false when the table is empty.
func (w *Writer) LastTime(ctx context.Context, t Table) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	var ms sql.NullInt64
	if err := w.db.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", quote("ts"), w.table(t.Name))).Scan(&ms); err != nil {
		return time.Time{}, false, err
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64), true, nil
}

func (w *Writer) Count(ctx context.Context, t Table) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	var n int64
	err := w.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", w.table(t.Name))).Scan(&n)
	return n, err
}

func (w *Writer) insert(ctx context.Context, t Table, rows []Row) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, w.insertQuery(t))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, row := range rows {
		values := row.Values()
		if len(values) != len(t.Columns) {
			_ = tx.Rollback()
			return fmt.Errorf("row has %d values, table %s has %d columns", len(values), t.Name, len(t.Columns))
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (w *Writer) insertQuery(t Table) string {
	names := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	unique := false
	for i, c := range t.Columns {
		names[i] = quote(c.Name)
		marks[i] = w.placeholder(i + 1)
		unique = unique || c.unique
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.table(t.Name), strings.Join(names, ", "), strings.Join(marks, ", "))
	if unique {
		query += " ON CONFLICT DO NOTHING"
	}
	return query
}

func (w *Writer) placeholder(n int) string {
	if w.driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (w *Writer) sqlType(k columnKind) string {
	switch k {
	case kindTime, kindInt:
		return "BIGINT"
	case kindReal:
		return "DOUBLE PRECISION"
	case kindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	if w.driver == "pgx" && w.schema != "" {
		return quote(w.schema) + "." + quote(name)
	}
	return quote(name)
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
