// Package index exports a checked global state to a SQLite database so that
// editors and scripts can look up symbols, references and diagnostics
// without running the checker.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
)

const driverName = "sqlite"

// Location roles.
const (
	RoleDefinition = "definition"
	RoleReference  = "reference"
	RoleCall       = "call"
)

var schema = []string{
	`DROP TABLE IF EXISTS files`,
	`DROP TABLE IF EXISTS symbols`,
	`DROP TABLE IF EXISTS locations`,
	`DROP TABLE IF EXISTS diagnostics`,
	`CREATE TABLE files (
		path  TEXT PRIMARY KEY,
		sigil TEXT NOT NULL,
		hash  TEXT NOT NULL
	)`,
	`CREATE TABLE symbols (
		id        INTEGER PRIMARY KEY,
		kind      TEXT NOT NULL,
		name      TEXT NOT NULL,
		full_name TEXT NOT NULL,
		owner     INTEGER NOT NULL,
		summary   TEXT NOT NULL
	)`,
	`CREATE TABLE locations (
		symbol   INTEGER NOT NULL REFERENCES symbols(id),
		role     TEXT NOT NULL,
		file     TEXT NOT NULL,
		line     INTEGER NOT NULL,
		col      INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		end_col  INTEGER NOT NULL
	)`,
	`CREATE INDEX locations_by_symbol ON locations(symbol)`,
	`CREATE INDEX locations_by_file ON locations(file, line)`,
	`CREATE TABLE diagnostics (
		file     TEXT NOT NULL,
		line     INTEGER NOT NULL,
		col      INTEGER NOT NULL,
		code     INTEGER NOT NULL,
		severity TEXT NOT NULL,
		message  TEXT NOT NULL
	)`,
}

// Open opens (creating if needed) the index database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Stats counts what Write stored.
type Stats struct {
	Files       int
	Symbols     int
	Locations   int
	Diagnostics int
}

// Write replaces the contents of db with gs in one transaction.
func Write(ctx context.Context, db *sql.DB, gs *symbols.GlobalState) (Stats, error) {
	var st Stats
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return st, fmt.Errorf("index: begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return st, fmt.Errorf("index: schema: %w", err)
		}
	}

	w := &writer{ctx: ctx, tx: tx, stats: &st}
	if err := w.files(gs); err != nil {
		return st, err
	}
	if err := w.symbols(gs); err != nil {
		return st, err
	}
	if err := w.locations(gs); err != nil {
		return st, err
	}
	if err := w.diagnostics(gs); err != nil {
		return st, err
	}
	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("index: commit: %w", err)
	}
	return st, nil
}

type writer struct {
	ctx   context.Context
	tx    *sql.Tx
	stats *Stats
}

func (w *writer) prepare(query string) (*sql.Stmt, error) {
	stmt, err := w.tx.PrepareContext(w.ctx, query)
	if err != nil {
		return nil, fmt.Errorf("index: prepare: %w", err)
	}
	return stmt, nil
}

func (w *writer) files(gs *symbols.GlobalState) error {
	stmt, err := w.prepare(`INSERT INTO files (path, sigil, hash) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range gs.FilePaths() {
		fs := gs.File(p)
		if _, err := stmt.ExecContext(w.ctx, fs.Path, fs.Sigil.String(), fs.Hash); err != nil {
			return fmt.Errorf("index: file %s: %w", p, err)
		}
		w.stats.Files++
	}
	return nil
}

func (w *writer) symbols(gs *symbols.GlobalState) error {
	stmt, err := w.prepare(`INSERT INTO symbols (id, kind, name, full_name, owner, summary) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range gs.Symbols() {
		sym := gs.Symbol(id)
		if _, err := stmt.ExecContext(w.ctx, int64(id), sym.Kind.String(), sym.Name, gs.FullName(id), int64(sym.Owner), gs.Show(id)); err != nil {
			return fmt.Errorf("index: symbol %s: %w", gs.FullName(id), err)
		}
		w.stats.Symbols++
	}
	return nil
}

func (w *writer) locations(gs *symbols.GlobalState) error {
	stmt, err := w.prepare(`INSERT INTO locations (symbol, role, file, line, col, end_line, end_col) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	insert := func(id symbols.SymbolID, role string, loc token.Loc) error {
		if id == symbols.NoSymbol || !loc.IsValid() {
			return nil
		}
		end := loc.End
		if !end.IsValid() {
			end = loc.Start
		}
		_, err := stmt.ExecContext(w.ctx, int64(id), role, loc.File, loc.Start.Line, loc.Start.Column, end.Line, end.Column)
		if err != nil {
			return fmt.Errorf("index: location %s: %w", loc, err)
		}
		w.stats.Locations++
		return nil
	}

	for _, id := range gs.Symbols() {
		for _, loc := range gs.Symbol(id).Locs {
			if err := insert(id, RoleDefinition, loc); err != nil {
				return err
			}
		}
	}
	for _, p := range gs.FilePaths() {
		fs := gs.File(p)
		for _, r := range fs.DefRefs {
			if err := insert(r.Symbol, RoleReference, r.Loc); err != nil {
				return err
			}
		}
		if fs.Body == nil {
			continue
		}
		for _, r := range fs.Body.Refs {
			if err := insert(r.Symbol, RoleReference, r.Loc); err != nil {
				return err
			}
		}
		for _, c := range fs.Body.Calls {
			if err := insert(c.Method, RoleCall, c.Loc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *writer) diagnostics(gs *symbols.GlobalState) error {
	stmt, err := w.prepare(`INSERT INTO diagnostics (file, line, col, code, severity, message) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, d := range gs.AllDiagnostics() {
		if _, err := stmt.ExecContext(w.ctx, d.Loc.File, d.Loc.Start.Line, d.Loc.Start.Column, int(d.Code), d.Severity.String(), d.Message); err != nil {
			return fmt.Errorf("index: diagnostic: %w", err)
		}
		w.stats.Diagnostics++
	}
	return nil
}

// Location is one row of the locations table.
type Location struct {
	Role string
	Loc  token.Loc
}

// Lookup returns the locations recorded for the symbol with the given full
// name, ordered by file and position.
func Lookup(ctx context.Context, db *sql.DB, fullName string) ([]Location, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT l.role, l.file, l.line, l.col, l.end_line, l.end_col
		FROM locations l JOIN symbols s ON s.id = l.symbol
		WHERE s.full_name = ?
		ORDER BY l.file, l.line, l.col, l.role`, fullName)
	if err != nil {
		return nil, fmt.Errorf("index: lookup %s: %w", fullName, err)
	}
	defer rows.Close()
	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.Role, &l.Loc.File, &l.Loc.Start.Line, &l.Loc.Start.Column, &l.Loc.End.Line, &l.Loc.End.Column); err != nil {
			return nil, fmt.Errorf("index: lookup %s: %w", fullName, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
