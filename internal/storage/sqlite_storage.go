package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/segscope/backend/internal/segment"
)

// SQLiteStorage implements ProjectStorage using SQLite.
// Segment and token order are kept as explicit position columns.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if needed.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		name TEXT PRIMARY KEY,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tokens (
		project TEXT NOT NULL,
		segment_idx INTEGER NOT NULL,
		pos INTEGER NOT NULL,
		original TEXT NOT NULL,
		PRIMARY KEY (project, segment_idx, pos),
		FOREIGN KEY (project) REFERENCES projects(name) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS segments (
		project TEXT NOT NULL,
		idx INTEGER NOT NULL,
		PRIMARY KEY (project, idx),
		FOREIGN KEY (project) REFERENCES projects(name) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Save replaces the stored copy of the project in one transaction
func (s *SQLiteStorage) Save(project *segment.Project) error {
	if project.Name == "" {
		return errors.New("project name is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM tokens WHERE project = ?`,
		`DELETE FROM segments WHERE project = ?`,
		`DELETE FROM projects WHERE name = ?`,
	} {
		if _, err := tx.Exec(q, project.Name); err != nil {
			return fmt.Errorf("failed to clear project: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO projects (name) VALUES (?)`, project.Name); err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	segStmt, err := tx.Prepare(`INSERT INTO segments (project, idx) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer segStmt.Close()

	tokStmt, err := tx.Prepare(`INSERT INTO tokens (project, segment_idx, pos, original) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare token insert: %w", err)
	}
	defer tokStmt.Close()

	for i, seg := range project.Segments {
		if _, err := segStmt.Exec(project.Name, i); err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", i, err)
		}
		for j, tok := range seg.Tokens {
			if _, err := tokStmt.Exec(project.Name, i, j, tok.Original); err != nil {
				return fmt.Errorf("failed to insert token %d of segment %d: %w", j, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project: %w", err)
	}
	return nil
}

// Get rebuilds a project in segment and token order
func (s *SQLiteStorage) Get(name string) (*segment.Project, error) {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM projects WHERE name = ?`, name).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up project: %w", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM segments WHERE project = ?`, name).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count segments: %w", err)
	}

	project := &segment.Project{Name: name, Segments: make([]segment.Segment, count)}

	rows, err := s.db.Query(
		`SELECT segment_idx, original FROM tokens WHERE project = ? ORDER BY segment_idx, pos`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var original string
		if err := rows.Scan(&idx, &original); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if idx < 0 || idx >= count {
			return nil, fmt.Errorf("token references missing segment %d", idx)
		}
		project.Segments[idx].Tokens = append(project.Segments[idx].Tokens, segment.Token{Original: original})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tokens: %w", err)
	}

	return project, nil
}

// List returns the names of every stored project, sorted
func (s *SQLiteStorage) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan project name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
