package output

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// SQLiteExport is everything one run writes to the optional database
type SQLiteExport struct {
	Cycles    []types.CycleRecord
	Days      []types.DayRecord
	Summaries []types.BoxSummary
}

// sqlite decodes %XX in URI paths, so the characters that would end the
// path early are percent-encoded
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

func sqliteDSN(path string) string {
	return "file:" + uriPathEscaper.Replace(path) + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=60000"
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func tableSchema[T any](table string, cols []column[T], key ...string) string {
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		kind := "REAL"
		if c.text {
			kind = "TEXT"
		}
		defs = append(defs, c.name+" "+kind)
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(key, ", ")+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", table, strings.Join(defs, ",\n  "))
}

func upsertRows[T any](ctx context.Context, tx *sql.Tx, table string, cols []column[T], rows []T) error {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rowOf(cols, &rows[i])...); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	return nil
}

// ExportSQLite upserts the run's tables into the database at path. Rows of
// devices outside this run are left alone.
func ExportSQLite(ctx context.Context, path string, export SQLiteExport) error {
	db, err := openDB(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer db.Close()

	schema := []string{
		tableSchema("cycles", cycleColumns, "box_ip", "log_file"),
		tableSchema("days", dayColumns, "box_ip", "date"),
		tableSchema("summaries", summaryColumns, "box_ip"),
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return err
	}
	if err := upsertRows(ctx, tx, "cycles", cycleColumns, export.Cycles); err != nil {
		tx.Rollback()
		return err
	}
	if err := upsertRows(ctx, tx, "days", dayColumns, export.Days); err != nil {
		tx.Rollback()
		return err
	}
	if err := upsertRows(ctx, tx, "summaries", summaryColumns, export.Summaries); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
