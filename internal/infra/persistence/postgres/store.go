// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics while writing the lineage graph into normalized tables.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/internal/infra/persistence/sqlbundle"
	"lineagecore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/lineagecore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It applies the lineage DDL and hydrates the in-memory store from the
// normalized tables.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyDDLStatements(ctx, db, sqlbundle.Postgres()); err != nil {
		return nil, err
	}
	snapshot, err := loadNormalized(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	s := &Store{Store: mem, db: db}
	mem.SetCommitHook(func(ctx context.Context, next memory.Snapshot) error {
		return persistNormalized(ctx, s.db, next)
	})
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func applyDDLStatements(ctx context.Context, db execQuerier, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func persistNormalized(ctx context.Context, db *sql.DB, snapshot memory.Snapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	tables := sqlbundle.Tables()
	reversed := make([]string, len(tables))
	for i, t := range tables {
		reversed[len(tables)-1-i] = t
	}
	if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(reversed, ", ")); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	steps := []func(context.Context, execQuerier, memory.Snapshot) error{
		insertTypes,
		insertArtifacts,
		insertProtocols,
		insertRuns,
		insertApplications,
		insertEdges,
	}
	for _, step := range steps {
		if err := step(ctx, tx, snapshot); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func insertTypes(ctx context.Context, db execQuerier, s memory.Snapshot) error {
	for _, id := range sortedKeys(s.Types) {
		t := s.Types[id]
		if _, err := db.ExecContext(ctx, `INSERT INTO artifact_types (id, name, kind, created_at) VALUES ($1, $2, $3, $4)`,
			t.ID, t.Name, string(t.Kind), t.CreatedAt); err != nil {
			return fmt.Errorf("insert artifact_types: %w", err)
		}
	}
	return nil
}

func insertArtifacts(ctx context.Context, db execQuerier, s memory.Snapshot) error {
	for _, id := range sortedKeys(s.Artifacts) {
		a := s.Artifacts[id]
		if _, err := db.ExecContext(ctx, `INSERT INTO artifacts (id, name, kind, type_id, scope_id, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, a.Name, string(a.Kind), nullable(a.TypeID), a.ScopeID, a.CreatedBy, a.CreatedAt); err != nil {
			return fmt.Errorf("insert artifacts: %w", err)
		}
	}
	return nil
}

func insertProtocols(ctx context.Context, db execQuerier, s memory.Snapshot) error {
	for _, id := range sortedKeys(s.Protocols) {
		p := s.Protocols[id]
		actions, err := json.Marshal(p.Actions)
		if err != nil {
			return fmt.Errorf("encode protocol %s actions: %w", p.ID, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO protocols (id, name, version, description, created_at, actions) VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, p.Name, p.Version, p.Description, p.CreatedAt, string(actions)); err != nil {
			return fmt.Errorf("insert protocols: %w", err)
		}
	}
	return nil
}

func insertRuns(ctx context.Context, db execQuerier, s memory.Snapshot) error {
	for _, id := range sortedKeys(s.Runs) {
		r := s.Runs[id]
		if _, err := db.ExecContext(ctx, `INSERT INTO runs (id, name, protocol_id, scope_id, created_by, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, r.Name, r.ProtocolID, r.ScopeID, r.CreatedBy, string(r.Status), r.CreatedAt); err != nil {
			return fmt.Errorf("insert runs: %w", err)
		}
	}
	return nil
}

func insertApplications(ctx context.Context, db execQuerier, s memory.Snapshot) error {
	for _, id := range sortedKeys(s.Applications) {
		app := s.Applications[id]
		if _, err := db.ExecContext(ctx, `INSERT INTO protocol_applications (id, run_id, action_id, name, sequence) VALUES ($1, $2, $3, $4, $5)`,
			app.ID, app.RunID, app.ActionID, app.Name, app.Sequence); err != nil {
			return fmt.Errorf("insert protocol_applications: %w", err)
		}
	}
	return nil
}

func insertEdges(ctx context.Context, db execQuerier, s memory.Snapshot) error {
	for _, e := range s.Edges {
		if _, err := db.ExecContext(ctx, `INSERT INTO edges (artifact_id, application_id, role, property_id, direction) VALUES ($1, $2, $3, $4, $5)`,
			e.ArtifactID, e.ApplicationID, e.Role, nullable(e.PropertyID), string(e.Direction)); err != nil {
			return fmt.Errorf("insert edges: %w", err)
		}
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func loadNormalized(ctx context.Context, db execQuerier) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Types:        map[string]domain.ArtifactType{},
		Artifacts:    map[string]domain.Artifact{},
		Protocols:    map[string]domain.ProtocolGraph{},
		Runs:         map[string]domain.RunInstance{},
		Applications: map[string]domain.ProtocolApplication{},
	}
	loaders := []func(context.Context, execQuerier, *memory.Snapshot) error{
		loadTypes,
		loadArtifacts,
		loadProtocols,
		loadRuns,
		loadApplications,
		loadEdges,
	}
	for _, load := range loaders {
		if err := load(ctx, db, &snapshot); err != nil {
			return memory.Snapshot{}, err
		}
	}
	return snapshot, nil
}

func queryRows(ctx context.Context, db execQuerier, table, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	return nil
}

func loadTypes(ctx context.Context, db execQuerier, s *memory.Snapshot) error {
	return queryRows(ctx, db, "artifact_types", `SELECT id, name, kind, created_at FROM artifact_types`, func(rows *sql.Rows) error {
		var t domain.ArtifactType
		var kind string
		if err := rows.Scan(&t.ID, &t.Name, &kind, &t.CreatedAt); err != nil {
			return err
		}
		t.Kind = domain.ArtifactKind(kind)
		s.Types[t.ID] = t
		return nil
	})
}

func loadArtifacts(ctx context.Context, db execQuerier, s *memory.Snapshot) error {
	return queryRows(ctx, db, "artifacts", `SELECT id, name, kind, type_id, scope_id, created_by, created_at FROM artifacts`, func(rows *sql.Rows) error {
		var a domain.Artifact
		var kind string
		var typeID sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &kind, &typeID, &a.ScopeID, &a.CreatedBy, &a.CreatedAt); err != nil {
			return err
		}
		a.Kind = domain.ArtifactKind(kind)
		if typeID.Valid {
			a.TypeID = domain.StringPtr(typeID.String)
		}
		if _, ok := s.Types[derefOr(a.TypeID)]; a.Typed() && !ok {
			return fmt.Errorf("artifact %s references unknown type %s", a.ID, *a.TypeID)
		}
		s.Artifacts[a.ID] = a
		return nil
	})
}

func loadProtocols(ctx context.Context, db execQuerier, s *memory.Snapshot) error {
	return queryRows(ctx, db, "protocols", `SELECT id, name, version, description, created_at, actions FROM protocols`, func(rows *sql.Rows) error {
		var p domain.ProtocolGraph
		var actions []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Version, &p.Description, &p.CreatedAt, &actions); err != nil {
			return err
		}
		if err := json.Unmarshal(actions, &p.Actions); err != nil {
			return fmt.Errorf("decode protocol %s actions: %w", p.ID, err)
		}
		s.Protocols[p.ID] = p
		return nil
	})
}

func loadRuns(ctx context.Context, db execQuerier, s *memory.Snapshot) error {
	return queryRows(ctx, db, "runs", `SELECT id, name, protocol_id, scope_id, created_by, status, created_at FROM runs`, func(rows *sql.Rows) error {
		var r domain.RunInstance
		var status string
		if err := rows.Scan(&r.ID, &r.Name, &r.ProtocolID, &r.ScopeID, &r.CreatedBy, &status, &r.CreatedAt); err != nil {
			return err
		}
		if _, ok := s.Protocols[r.ProtocolID]; !ok {
			return fmt.Errorf("run %s references unknown protocol %s", r.ID, r.ProtocolID)
		}
		r.Status = domain.RunStatus(status)
		s.Runs[r.ID] = r
		return nil
	})
}

// loadApplications also rebuilds each run's application list, ordered by
// sequence then id.
func loadApplications(ctx context.Context, db execQuerier, s *memory.Snapshot) error {
	err := queryRows(ctx, db, "protocol_applications", `SELECT id, run_id, action_id, name, sequence FROM protocol_applications`, func(rows *sql.Rows) error {
		var app domain.ProtocolApplication
		if err := rows.Scan(&app.ID, &app.RunID, &app.ActionID, &app.Name, &app.Sequence); err != nil {
			return err
		}
		if _, ok := s.Runs[app.RunID]; !ok {
			return fmt.Errorf("application %s references unknown run %s", app.ID, app.RunID)
		}
		s.Applications[app.ID] = app
		return nil
	})
	if err != nil {
		return err
	}
	byRun := map[string][]domain.ProtocolApplication{}
	for _, app := range s.Applications {
		byRun[app.RunID] = append(byRun[app.RunID], app)
	}
	for runID, apps := range byRun {
		sort.Slice(apps, func(i, j int) bool {
			if apps[i].Sequence != apps[j].Sequence {
				return apps[i].Sequence < apps[j].Sequence
			}
			return apps[i].ID < apps[j].ID
		})
		run := s.Runs[runID]
		run.ApplicationIDs = make([]string, 0, len(apps))
		for _, app := range apps {
			run.ApplicationIDs = append(run.ApplicationIDs, app.ID)
		}
		s.Runs[runID] = run
	}
	return nil
}

func loadEdges(ctx context.Context, db execQuerier, s *memory.Snapshot) error {
	return queryRows(ctx, db, "edges", `SELECT artifact_id, application_id, role, property_id, direction FROM edges`, func(rows *sql.Rows) error {
		var e domain.Edge
		var property sql.NullString
		var direction string
		if err := rows.Scan(&e.ArtifactID, &e.ApplicationID, &e.Role, &property, &direction); err != nil {
			return err
		}
		if property.Valid {
			e.PropertyID = domain.StringPtr(property.String)
		}
		e.Direction = domain.EdgeDirection(direction)
		s.Edges = append(s.Edges, e)
		return nil
	})
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
