// Package store persists a code property graph into SQLite. It implements
// the same Load contract as the export sinks: one call writes the whole
// graph, batched inside a single transaction.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cpgscan/cpgscan/internal/export"
	"github.com/cpgscan/cpgscan/internal/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	file_path  TEXT NOT NULL DEFAULT '',
	line_start INTEGER NOT NULL DEFAULT 0,
	line_end   INTEGER NOT NULL DEFAULT 0,
	properties TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS edges (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	src        TEXT NOT NULL,
	dst        TEXT NOT NULL,
	type       TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);
CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file_path);
CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst);
CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(type);
`

// Store wraps a SQLite connection for graph storage.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path and initializes the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}
	return open("file:" + path + "?_journal_mode=WAL&_busy_timeout=5000")
}

// OpenMemory opens an in-memory database, for testing.
func OpenMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load replaces the stored graph with the given one. All writes happen in
// one transaction; on any failure the database keeps its previous contents.
func (s *Store) Load(nodes map[graph.ID]graph.Node, edges []graph.Edge) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := load(tx, nodes, edges); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func load(tx *sql.Tx, nodes map[graph.ID]graph.Node, edges []graph.Edge) error {
	if _, err := tx.Exec("DELETE FROM edges"); err != nil {
		return fmt.Errorf("clear edges: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM nodes"); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}

	insertNode, err := tx.Prepare(`
		INSERT INTO nodes (id, kind, name, file_path, line_start, line_end, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer insertNode.Close()

	nodeRows, edgeRows := export.Rows(nodes, edges)
	for _, row := range nodeRows {
		id, kind := row["id"].(string), row["kind"].(string)
		name, _ := row["name"].(string)
		file, _ := row["file_path"].(string)
		start, end := lineRange(row)
		props, err := marshalExtra(row, "id", "kind", "name", "file_path", "line_start", "line_end", "line")
		if err != nil {
			return fmt.Errorf("node %s properties: %w", id, err)
		}
		if _, err := insertNode.Exec(id, kind, name, file, start, end, props); err != nil {
			return fmt.Errorf("insert node %s: %w", id, err)
		}
	}

	insertEdge, err := tx.Prepare(`
		INSERT INTO edges (src, dst, type, properties) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer insertEdge.Close()

	for _, row := range edgeRows {
		src, dst, typ := row["src"].(string), row["dst"].(string), row["type"].(string)
		props, err := marshalExtra(row, "src", "dst", "type")
		if err != nil {
			return fmt.Errorf("edge %s->%s properties: %w", src, dst, err)
		}
		if _, err := insertEdge.Exec(src, dst, typ, props); err != nil {
			return fmt.Errorf("insert edge %s->%s: %w", src, dst, err)
		}
	}
	return nil
}

// lineRange reads the row's line span. Findings carry a single "line"
// value, stored as a one-line range.
func lineRange(row map[string]any) (int, int) {
	if line, ok := row["line"].(int); ok {
		return line, line
	}
	start, _ := row["line_start"].(int)
	end, _ := row["line_end"].(int)
	return start, end
}

// marshalExtra JSON-encodes whatever row keys are not stored as columns.
func marshalExtra(row map[string]any, columns ...string) (string, error) {
	skip := make(map[string]bool, len(columns))
	for _, c := range columns {
		skip[c] = true
	}
	extra := make(map[string]any)
	for k, v := range row {
		if !skip[k] {
			extra[k] = v
		}
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CountNodes returns the number of stored nodes.
func (s *Store) CountNodes() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&n)
	return n, err
}

// CountEdges returns the number of stored edges.
func (s *Store) CountEdges() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&n)
	return n, err
}

// Row is one stored node row.
type Row struct {
	ID         string
	Kind       string
	Name       string
	FilePath   string
	LineStart  int
	LineEnd    int
	Properties string
}

// NodesByKind returns stored nodes with the given kind tag, ordered by ID.
func (s *Store) NodesByKind(kind string) ([]Row, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, name, file_path, line_start, line_end, properties
		FROM nodes WHERE kind = ? ORDER BY id`, kind)
	if err != nil {
		return nil, fmt.Errorf("nodes by kind: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// NodesByFile returns stored nodes in the given file, ordered by ID.
func (s *Store) NodesByFile(filePath string) ([]Row, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, name, file_path, line_start, line_end, properties
		FROM nodes WHERE file_path = ? ORDER BY id`, filePath)
	if err != nil {
		return nil, fmt.Errorf("nodes by file: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Kind, &r.Name, &r.FilePath, &r.LineStart, &r.LineEnd, &r.Properties); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
