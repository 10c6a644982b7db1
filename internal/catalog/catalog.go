package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dirPermissions is the permission mode for the catalog directory.
	dirPermissions = 0750

	// busyTimeoutMs bounds waiting on a database lock.
	busyTimeoutMs = 5000

	// connectionTimeout is the timeout for verifying connectivity.
	connectionTimeout = 5 * time.Second
)

// schema is applied on open. The catalog is a single lookup table kept
// deliberately small; an external provisioning job populates it.
const schema = `
CREATE TABLE IF NOT EXISTS pieces (
    piece_id TEXT PRIMARY KEY,
    material TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Catalog answers piece attribute lookups backed by SQLite.
// A nil *Catalog is valid and answers every lookup from the heuristic,
// so callers need no special casing when the catalog is disabled.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite catalog at path.
//
// Parameters:
//   - path: Filesystem path to the SQLite database file
//
// Returns:
//   - *Catalog: Connected catalog
//   - error: If the file cannot be opened or the schema applied
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	// Single writer, occasional reader. One connection avoids lock churn.
	db.SetMaxOpenConns(1)

	done := make(chan error, 1)
	go func() { done <- db.Ping() }()
	select {
	case err = <-done:
	case <-time.After(connectionTimeout):
		err = errors.New("ping timed out")
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying catalog connection: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Material returns the material for a piece.
//
// Resolution order: catalog row, then piece ID prefix heuristic. The
// second return is false when neither source knows the piece.
func (c *Catalog) Material(pieceID string) (string, bool) {
	if c != nil && c.db != nil {
		var material string
		err := c.db.QueryRow(
			"SELECT material FROM pieces WHERE piece_id = ?", pieceID,
		).Scan(&material)
		if err == nil {
			return material, true
		}
	}
	return heuristicMaterial(pieceID)
}

// AddPiece records a piece's material, replacing any existing row.
func (c *Catalog) AddPiece(pieceID, material string) error {
	if c == nil || c.db == nil {
		return errors.New("catalog: not open")
	}
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO pieces (piece_id, material) VALUES (?, ?)",
		pieceID, material,
	)
	if err != nil {
		return fmt.Errorf("adding piece %s: %w", pieceID, err)
	}
	return nil
}

// Close releases the underlying database connection.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// heuristicMaterial infers material from the plant's piece numbering.
func heuristicMaterial(pieceID string) (string, bool) {
	switch {
	case strings.HasPrefix(pieceID, "PZ00"):
		return "steel", true
	case strings.HasPrefix(pieceID, "PZ01"):
		return "alu", true
	default:
		return "", false
	}
}
