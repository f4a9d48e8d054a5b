// Package sqlite keeps the lineage state in a single SQLite file. The
// in-memory store stays authoritative for reads; every commit is written
// through as JSON buckets before it becomes visible.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/internal/infra/persistence/sqlbundle"
	"lineagecore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "lineagecore.db"

// Store is a memory.Store whose commits are mirrored to SQLite. Buckets whose
// encoding did not change since the last successful write are skipped.
type Store struct {
	*memory.Store
	db      *sql.DB
	path    string
	written map[string][sha256.Size]byte
}

// bucket pairs a state table row with the snapshot field it holds.
type bucket struct {
	name string
	slot any
}

// Stable write order keeps transactions touching the same rows in step.
func bucketsOf(s *memory.Snapshot) []bucket {
	return []bucket{
		{"applications", &s.Applications},
		{"artifacts", &s.Artifacts},
		{"edges", &s.Edges},
		{"protocols", &s.Protocols},
		{"runs", &s.Runs},
		{"types", &s.Types},
	}
}

// NewStore opens (creating if needed) the database at path, lineagecore.db
// when empty, and loads any state it already holds.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path, written: map[string][sha256.Size]byte{}}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.SetCommitHook(s.persist)
	return s, nil
}

func (s *Store) init() error {
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.SQLite()) {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	slots := map[string]any{}
	for _, b := range bucketsOf(&snapshot) {
		slots[b.name] = b.slot
	}
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		slot, known := slots[name]
		if !known {
			continue
		}
		if err := json.Unmarshal(payload, slot); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		s.written[name] = sha256.Sum256(payload)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if len(s.written) > 0 {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) (err error) {
	type pending struct {
		name    string
		payload []byte
		sum     [sha256.Size]byte
	}
	var dirty []pending
	for _, b := range bucketsOf(&snapshot) {
		payload, encErr := json.Marshal(b.slot)
		if encErr != nil {
			return fmt.Errorf("encode %s: %w", b.name, encErr)
		}
		sum := sha256.Sum256(payload)
		if prev, ok := s.written[b.name]; ok && prev == sum {
			continue
		}
		dirty = append(dirty, pending{b.name, payload, sum})
	}
	if len(dirty) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, p := range dirty {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO state(bucket, payload) VALUES(?, ?)
			 ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload, revision = state.revision + 1`,
			p.name, p.payload); err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, p := range dirty {
		s.written[p.name] = p.sum
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for tests and maintenance tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }
