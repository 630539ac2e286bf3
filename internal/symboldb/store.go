// Package symboldb persists the outcome of an analysis run to SQLite so the
// reachable set and diagnostics can be inspected after the fact.
package symboldb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pyslim/internal/diag"
	"pyslim/internal/graph"
)

const sqliteDriverName = "sqlite"

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("symbol db path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("symbol db path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create symbol db directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open symbol db %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping symbol db %q: %w", cleanPath, err)
	}
	if err := migrateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrateSchema(db *sql.DB) error {
	var version int
	_ = db.QueryRow(`PRAGMA user_version`).Scan(&version)

	if version == 0 {
		_, err := db.Exec(`
CREATE TABLE runs (
  run_id TEXT NOT NULL PRIMARY KEY,
  started_at TEXT NOT NULL,
  entry_points TEXT NOT NULL DEFAULT '[]',
  retain_all INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE modules (
  run_id TEXT NOT NULL,
  module_name TEXT NOT NULL,
  file_path TEXT NOT NULL,
  dist_name TEXT NOT NULL DEFAULT '',
  reachable INTEGER NOT NULL DEFAULT 0,
  static_only INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (run_id, module_name)
);
CREATE INDEX idx_modules_run_reachable ON modules(run_id, reachable);

CREATE TABLE symbols (
  run_id TEXT NOT NULL,
  module_name TEXT NOT NULL,
  symbol_name TEXT NOT NULL,
  kind INTEGER NOT NULL DEFAULT 0,
  line_number INTEGER NOT NULL DEFAULT 0,
  decorators TEXT NOT NULL DEFAULT '[]',
  reachable INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (run_id, module_name, symbol_name, line_number)
);
CREATE INDEX idx_symbols_run_name ON symbols(run_id, symbol_name);

CREATE TABLE diagnostics (
  run_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  file_path TEXT NOT NULL DEFAULT '',
  line_number INTEGER NOT NULL DEFAULT 0,
  message TEXT NOT NULL
);
CREATE INDEX idx_diagnostics_run_kind ON diagnostics(run_id, kind);

PRAGMA user_version = 1;
`)
		if err != nil {
			return fmt.Errorf("create v1 schema: %w", err)
		}
	}
	return nil
}

// SaveRun writes one full analysis outcome under the collector's run id.
func (s *Store) SaveRun(reg *graph.Registry, result *graph.Result, diags *diag.Collector, entryPoints []string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}

	runID := diags.RunID()
	entries, err := json.Marshal(entryPoints)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("marshal entry points: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO runs (run_id, started_at, entry_points, retain_all) VALUES (?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339), string(entries), boolToInt(result.RetainAll),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	if err := insertModules(tx, runID, reg, result); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertSymbols(tx, runID, reg, result); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertDiagnostics(tx, runID, diags); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run tx: %w", err)
	}
	return nil
}

func insertModules(tx *sql.Tx, runID string, reg *graph.Registry, result *graph.Result) error {
	stmt, err := tx.Prepare(`INSERT INTO modules (run_id, module_name, file_path, dist_name, reachable, static_only) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare module insert: %w", err)
	}
	defer stmt.Close()

	for _, file := range reg.Files() {
		if _, err := stmt.Exec(
			runID,
			file.Module,
			file.Path,
			file.Dist,
			boolToInt(result.ModuleReachable(file.Module)),
			boolToInt(result.StaticOnly[file.Module]),
		); err != nil {
			return fmt.Errorf("insert module row %q: %w", file.Module, err)
		}
	}
	return nil
}

func insertSymbols(tx *sql.Tx, runID string, reg *graph.Registry, result *graph.Result) error {
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO symbols (run_id, module_name, symbol_name, kind, line_number, decorators, reachable) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare symbol insert: %w", err)
	}
	defer stmt.Close()

	for _, file := range reg.Files() {
		for i := range file.Defs {
			def := file.Defs[i]
			decorators := "[]"
			if len(def.Decorators) > 0 {
				raw, err := json.Marshal(def.Decorators)
				if err != nil {
					return fmt.Errorf("marshal decorators for %q: %w", def.Name, err)
				}
				decorators = string(raw)
			}
			if _, err := stmt.Exec(
				runID,
				file.Module,
				def.Name,
				int(def.Kind),
				def.Location.Line,
				decorators,
				boolToInt(result.SymbolReachable(file.Module, def.Name)),
			); err != nil {
				return fmt.Errorf("insert symbol row (%s:%s): %w", file.Module, def.Name, err)
			}
		}
	}
	return nil
}

func insertDiagnostics(tx *sql.Tx, runID string, diags *diag.Collector) error {
	stmt, err := tx.Prepare(`INSERT INTO diagnostics (run_id, kind, file_path, line_number, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare diagnostic insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range diags.Records() {
		if _, err := stmt.Exec(runID, string(rec.Kind), rec.Location.File, rec.Location.Line, rec.Message); err != nil {
			return fmt.Errorf("insert diagnostic row: %w", err)
		}
	}
	return nil
}

// Summary is a stored run's headline numbers.
type Summary struct {
	RunID       string
	Reachable   int
	Total       int
	Diagnostics int
}

func (s *Store) LoadSummary(runID string) (*Summary, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	sum := &Summary{RunID: runID}
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(reachable), 0) FROM modules WHERE run_id = ?`, runID,
	).Scan(&sum.Total, &sum.Reachable)
	if err != nil {
		return nil, fmt.Errorf("load module counts: %w", err)
	}
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM diagnostics WHERE run_id = ?`, runID,
	).Scan(&sum.Diagnostics)
	if err != nil {
		return nil, fmt.Errorf("load diagnostic count: %w", err)
	}
	return sum, nil
}

// ReachableSymbols returns the stored reachable symbol names of one module.
func (s *Store) ReachableSymbols(runID, module string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.Query(
		`SELECT symbol_name FROM symbols WHERE run_id = ? AND module_name = ? AND reachable = 1 ORDER BY line_number, symbol_name`,
		runID, module,
	)
	if err != nil {
		return nil, fmt.Errorf("query reachable symbols: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan symbol name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
