package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/chaseai/chaseai/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS contexts (
	port    INTEGER PRIMARY KEY,
	context TEXT NOT NULL
)`

// SQLiteStore keeps one row per port. SaveAll replaces every row in a
// single transaction.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create context directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// LoadAll reads every row.
func (s *SQLiteStore) LoadAll() (Contexts, error) {
	rows, err := s.db.Query(`SELECT port, context FROM contexts`)
	if err != nil {
		return nil, fmt.Errorf("query contexts: %w", err)
	}
	defer rows.Close()

	out := Contexts{}
	for rows.Next() {
		var port int
		var raw string
		if err := rows.Scan(&port, &raw); err != nil {
			return nil, err
		}
		var c model.InstructionContext
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode context for port %d: %w", port, err)
		}
		out[uint16(port)] = c
	}
	return out, rows.Err()
}

// SaveAll replaces the table contents.
func (s *SQLiteStore) SaveAll(contexts Contexts) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM contexts`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO contexts (port, context) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for port, c := range contexts {
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(int(port), string(raw)); err != nil {
			return fmt.Errorf("insert port %d: %w", port, err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
