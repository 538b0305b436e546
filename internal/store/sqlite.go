package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/docsearch-app/docsearch/internal/errors"
)

// SQLiteCatalog implements Catalog on SQLite.
// WAL mode plus a single pooled connection keeps writers serialized while
// the serve loop reads concurrently.
type SQLiteCatalog struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Catalog = (*SQLiteCatalog)(nil)

// validateIntegrity checks an existing catalog database before opening.
// Corruption is surfaced as an explicit error; recovery is the operator's
// decision (clear and reindex), never silent.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// NewSQLiteCatalog opens or creates the catalog at path.
// An empty path creates an in-memory catalog for testing.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if err := validateIntegrity(path); err != nil {
			return nil, errors.New(errors.ErrCodeCorruptIndex,
				"metadata catalog corrupted: "+path, err)
		}

		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer connection prevents lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	c := &SQLiteCatalog{db: db, path: path}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		file_path     TEXT PRIMARY KEY,
		file_size     INTEGER NOT NULL,
		modified_time INTEGER NOT NULL,
		document_id   TEXT NOT NULL,
		content_hash  TEXT,
		indexed_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id     TEXT PRIMARY KEY,
		document_id  TEXT NOT NULL,
		vector_index INTEGER,
		FOREIGN KEY (document_id) REFERENCES files(document_id)
	);

	CREATE TABLE IF NOT EXISTS folders (
		folder_path  TEXT PRIMARY KEY,
		last_indexed INTEGER NOT NULL,
		total_files  INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_document_id ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_vector_index ON chunks(vector_index);
	`

	_, err := c.db.Exec(schema)
	return err
}

// Classify compares a file snapshot to its catalog record. A cataloged
// path that no longer exists on disk classifies as deleted.
func (c *SQLiteCatalog) Classify(ctx context.Context, snap Snapshot) (Status, *FileRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return "", nil, errors.New(errors.ErrCodeCatalogFailure, "catalog is closed", nil)
	}

	status, rec, err := c.classifyLocked(ctx, snap)
	if err != nil || rec == nil {
		return status, rec, err
	}
	if _, statErr := os.Stat(snap.Path); os.IsNotExist(statErr) {
		return StatusDeleted, rec, nil
	}
	return status, rec, nil
}

func (c *SQLiteCatalog) lookup(ctx context.Context, path string) (*FileRecord, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT file_path, file_size, modified_time, document_id,
		        COALESCE(content_hash, ''), indexed_at
		 FROM files WHERE file_path = ?`, path)

	var (
		rec       FileRecord
		mtimeNano int64
		indexedAt int64
	)
	err := row.Scan(&rec.FilePath, &rec.FileSize, &mtimeNano,
		&rec.DocumentID, &rec.ContentHash, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "lookup failed for "+path, err)
	}

	rec.ModTime = time.Unix(0, mtimeNano)
	rec.IndexedAt = time.Unix(0, indexedAt)
	return &rec, nil
}

// DiffDirectory partitions on-disk snapshots against catalog rows under dir.
func (c *SQLiteCatalog) DiffDirectory(ctx context.Context, dir string, current []Snapshot) (*ChangeSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "catalog is closed", nil)
	}

	prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)
	rows, err := c.db.QueryContext(ctx,
		`SELECT file_path FROM files WHERE file_path LIKE ? ESCAPE '\'`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "diff query failed", err)
	}
	defer rows.Close()

	indexed := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.New(errors.ErrCodeCatalogFailure, "diff scan failed", err)
		}
		indexed[p] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "diff rows failed", err)
	}

	cs := &ChangeSet{}
	onDisk := make(map[string]bool, len(current))
	for _, snap := range current {
		onDisk[snap.Path] = true

		status, _, err := c.classifyLocked(ctx, snap)
		if err != nil {
			return nil, err
		}
		switch status {
		case StatusNew:
			cs.New = append(cs.New, snap.Path)
		case StatusModified:
			cs.Modified = append(cs.Modified, snap.Path)
		default:
			cs.Unchanged = append(cs.Unchanged, snap.Path)
		}
	}

	for path := range indexed {
		if !onDisk[path] {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	return cs, nil
}

// classifyLocked is the stat-free core shared with DiffDirectory, whose
// snapshots come from a disk enumeration and therefore exist.
func (c *SQLiteCatalog) classifyLocked(ctx context.Context, snap Snapshot) (Status, *FileRecord, error) {
	rec, err := c.lookup(ctx, snap.Path)
	if err != nil {
		return "", nil, err
	}
	if rec == nil {
		return StatusNew, nil, nil
	}
	if snap.ContentHash != "" && rec.ContentHash != "" {
		if snap.ContentHash != rec.ContentHash {
			return StatusModified, rec, nil
		}
		return StatusUnchanged, rec, nil
	}
	if snap.ModTime.UnixNano() != rec.ModTime.UnixNano() || snap.Size != rec.FileSize {
		return StatusModified, rec, nil
	}
	return StatusUnchanged, rec, nil
}

// Record replaces a file's catalog entry and chunk rows in one transaction.
func (c *SQLiteCatalog) Record(ctx context.Context, file FileRecord, chunkIDs []string, positions []int) error {
	if len(chunkIDs) != len(positions) {
		return errors.ValidationError(
			fmt.Sprintf("chunk/position length mismatch: %d != %d", len(chunkIDs), len(positions)), nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New(errors.ErrCodeCatalogFailure, "catalog is closed", nil)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCodeCatalogFailure, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Drop chunk rows from any previous identity of this path
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE document_id IN
		   (SELECT document_id FROM files WHERE file_path = ?)`, file.FilePath); err != nil {
		return errors.New(errors.ErrCodeCatalogFailure, "failed to clear old chunks", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO files
		   (file_path, file_size, modified_time, document_id, content_hash, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		file.FilePath, file.FileSize, file.ModTime.UnixNano(),
		file.DocumentID, nullable(file.ContentHash), time.Now().UnixNano()); err != nil {
		return errors.New(errors.ErrCodeCatalogFailure, "failed to record file", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (chunk_id, document_id, vector_index) VALUES (?, ?, ?)`)
	if err != nil {
		return errors.New(errors.ErrCodeCatalogFailure, "failed to prepare chunk insert", err)
	}
	defer stmt.Close()

	for i, chunkID := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, chunkID, file.DocumentID, positions[i]); err != nil {
			return errors.New(errors.ErrCodeCatalogFailure, "failed to record chunk "+chunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeCatalogFailure, "failed to commit record", err)
	}
	return nil
}

// Remove deletes a file and its chunk rows.
func (c *SQLiteCatalog) Remove(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", errors.New(errors.ErrCodeCatalogFailure, "catalog is closed", nil)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.New(errors.ErrCodeCatalogFailure, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var documentID string
	err = tx.QueryRowContext(ctx,
		`SELECT document_id FROM files WHERE file_path = ?`, path).Scan(&documentID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.New(errors.ErrCodeCatalogFailure, "remove lookup failed", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return "", errors.New(errors.ErrCodeCatalogFailure, "failed to delete chunks", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM files WHERE file_path = ?`, path); err != nil {
		return "", errors.New(errors.ErrCodeCatalogFailure, "failed to delete file", err)
	}

	if err := tx.Commit(); err != nil {
		return "", errors.New(errors.ErrCodeCatalogFailure, "failed to commit remove", err)
	}
	return documentID, nil
}

// VectorPositions returns the vector positions for a document, ascending.
func (c *SQLiteCatalog) VectorPositions(ctx context.Context, documentID string) ([]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "catalog is closed", nil)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT vector_index FROM chunks WHERE document_id = ? ORDER BY vector_index`,
		documentID)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "vector positions query failed", err)
	}
	defer rows.Close()

	var positions []int
	for rows.Next() {
		var pos int
		if err := rows.Scan(&pos); err != nil {
			return nil, errors.New(errors.ErrCodeCatalogFailure, "vector positions scan failed", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// ShiftAfterRebuild rewrites vector positions from a rebuild mapping.
// All updates happen in one transaction so a crash can never leave the
// catalog half-shifted.
func (c *SQLiteCatalog) ShiftAfterRebuild(ctx context.Context, mapping map[string]int) error {
	if len(mapping) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New(errors.ErrCodeCatalogFailure, "catalog is closed", nil)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCodeCatalogFailure, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE chunks SET vector_index = ? WHERE chunk_id = ?`)
	if err != nil {
		return errors.New(errors.ErrCodeCatalogFailure, "failed to prepare shift", err)
	}
	defer stmt.Close()

	for chunkID, pos := range mapping {
		if _, err := stmt.ExecContext(ctx, pos, chunkID); err != nil {
			return errors.New(errors.ErrCodeCatalogFailure, "failed to shift chunk "+chunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeCatalogFailure, "failed to commit shift", err)
	}
	return nil
}

// UpdateFolder records that a folder was indexed with the given file count.
func (c *SQLiteCatalog) UpdateFolder(ctx context.Context, folder string, totalFiles int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New(errors.ErrCodeCatalogFailure, "catalog is closed", nil)
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO folders (folder_path, last_indexed, total_files)
		 VALUES (?, ?, ?)`,
		folder, time.Now().UnixNano(), totalFiles)
	if err != nil {
		return errors.New(errors.ErrCodeCatalogFailure, "failed to update folder", err)
	}
	return nil
}

// Stats returns catalog counters and per-folder summaries.
func (c *SQLiteCatalog) Stats(ctx context.Context) (*Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "catalog is closed", nil)
	}

	stats := &Stats{}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files`).Scan(&stats.TotalFiles); err != nil {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "file count failed", err)
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks`).Scan(&stats.TotalChunks); err != nil {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "chunk count failed", err)
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(file_size), 0) FROM files`).Scan(&stats.TotalSize); err != nil {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "size sum failed", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT folder_path, last_indexed, total_files
		 FROM folders ORDER BY last_indexed DESC`)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCatalogFailure, "folder query failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fs          FolderStat
			lastIndexed int64
		)
		if err := rows.Scan(&fs.Path, &lastIndexed, &fs.TotalFiles); err != nil {
			return nil, errors.New(errors.ErrCodeCatalogFailure, "folder scan failed", err)
		}
		fs.LastIndexed = time.Unix(0, lastIndexed)
		stats.Folders = append(stats.Folders, fs)
	}
	return stats, rows.Err()
}

// ClearAll removes every row from the catalog.
func (c *SQLiteCatalog) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New(errors.ErrCodeCatalogFailure, "catalog is closed", nil)
	}

	for _, table := range []string{"chunks", "files", "folders"} {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.New(errors.ErrCodeCatalogFailure, "failed to clear "+table, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (c *SQLiteCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
