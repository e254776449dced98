// Package journal records every submission the CLI makes in a local
// SQLite database so that past updates can be listed per issue.
package journal

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"adfbridge/internal/logging"
	"adfbridge/internal/response"
)

// Entry is one recorded submission.
type Entry struct {
	ID           string    `json:"id"`
	Operation    string    `json:"operation"`
	Identifier   string    `json:"identifier"`
	Transport    string    `json:"transport"`
	Digest       string    `json:"digest,omitempty"`
	Succeeded    bool      `json:"succeeded"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewEntry describes a finished submission. The payload is reduced to its
// digest; a payload that cannot be digested is recorded without one.
func NewEntry(operation, identifier, transport string, payload any, res response.Result) Entry {
	digest, err := Digest(payload)
	if err != nil {
		logging.JournalError("digest for %s %s: %v", operation, identifier, err)
	}
	return Entry{
		Operation:    operation,
		Identifier:   identifier,
		Transport:    transport,
		Digest:       digest,
		Succeeded:    res.Succeeded,
		ErrorMessage: res.ErrorMessage,
	}
}

// Journal is a SQLite-backed submission log. It is safe for concurrent use.
type Journal struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, dbPath: path}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Journal("journal opened at %s", path)
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		identifier TEXT NOT NULL,
		transport TEXT NOT NULL,
		digest TEXT,
		succeeded INTEGER NOT NULL,
		error_message TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_identifier ON submissions(identifier, created_at);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create submissions table: %w", err)
	}
	return nil
}

// Path returns the database path.
func (j *Journal) Path() string { return j.dbPath }

// Record stores e, assigning an ID and timestamp when unset, and returns
// the stored entry.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.Identifier == "" {
		return Entry{}, fmt.Errorf("entry has no identifier")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO submissions (id, operation, identifier, transport, digest, succeeded, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Operation, e.Identifier, e.Transport, e.Digest, e.Succeeded, e.ErrorMessage, e.CreatedAt.UnixNano())
	if err != nil {
		return Entry{}, fmt.Errorf("failed to record submission: %w", err)
	}
	logging.JournalDebug("recorded %s %s (%s) ok=%v", e.Operation, e.Identifier, e.ID, e.Succeeded)
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx, `
		SELECT id, operation, identifier, transport, digest, succeeded, error_message, created_at
		FROM submissions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, normalizeLimit(limit))
}

// ForIssue returns up to limit entries for one issue, newest first.
func (j *Journal) ForIssue(ctx context.Context, identifier string, limit int) ([]Entry, error) {
	return j.query(ctx, `
		SELECT id, operation, identifier, transport, digest, succeeded, error_message, created_at
		FROM submissions
		WHERE identifier = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, identifier, normalizeLimit(limit))
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			digest  sql.NullString
			errMsg  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Operation, &e.Identifier, &e.Transport, &digest, &e.Succeeded, &errMsg, &created); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		e.Digest = digest.String
		e.ErrorMessage = errMsg.String
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
}

// Digest returns the hex BLAKE3 hash of payload's canonical form. The
// payload is first reduced to plain JSON values, then encoded as
// deterministic CBOR, so equal payloads hash equally regardless of map
// order or Go types.
func Digest(payload any) (string, error) {
	if payload == nil {
		return "", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return "", fmt.Errorf("failed to decode payload: %w", err)
	}
	canonical, err := encMode.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
