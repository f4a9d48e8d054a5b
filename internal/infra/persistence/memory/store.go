// Package memory provides an in-memory implementation of the lineage
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lineagecore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Artifact aliases domain.Artifact for in-memory persistence operations.
	Artifact = domain.Artifact
	// ArtifactType aliases domain.ArtifactType.
	ArtifactType = domain.ArtifactType
	// ProtocolGraph aliases domain.ProtocolGraph.
	ProtocolGraph = domain.ProtocolGraph
	// RunInstance aliases domain.RunInstance.
	RunInstance = domain.RunInstance
	// ProtocolApplication aliases domain.ProtocolApplication.
	ProtocolApplication = domain.ProtocolApplication
	// Edge aliases domain.Edge.
	Edge = domain.Edge
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// memoryState holds committed or in-flight data. Committed state is never
// mutated: transactions work on a clone and swap it in on commit, so readers
// can share the committed maps.
type memoryState struct {
	types        map[string]ArtifactType
	artifacts    map[string]Artifact
	protocols    map[string]ProtocolGraph
	runs         map[string]RunInstance
	applications map[string]ProtocolApplication
	edges        map[string]Edge
	// edge keys indexed by application and by artifact
	byApp      map[string][]string
	byArtifact map[string][]string
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Types        map[string]ArtifactType        `json:"types"`
	Artifacts    map[string]Artifact            `json:"artifacts"`
	Protocols    map[string]ProtocolGraph       `json:"protocols"`
	Runs         map[string]RunInstance         `json:"runs"`
	Applications map[string]ProtocolApplication `json:"applications"`
	Edges        []Edge                         `json:"edges"`
}

func newMemoryState() memoryState {
	return memoryState{
		types:        make(map[string]ArtifactType),
		artifacts:    make(map[string]Artifact),
		protocols:    make(map[string]ProtocolGraph),
		runs:         make(map[string]RunInstance),
		applications: make(map[string]ProtocolApplication),
		edges:        make(map[string]Edge),
		byApp:        make(map[string][]string),
		byArtifact:   make(map[string][]string),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Types:        make(map[string]ArtifactType, len(state.types)),
		Artifacts:    make(map[string]Artifact, len(state.artifacts)),
		Protocols:    make(map[string]ProtocolGraph, len(state.protocols)),
		Runs:         make(map[string]RunInstance, len(state.runs)),
		Applications: make(map[string]ProtocolApplication, len(state.applications)),
		Edges:        make([]Edge, 0, len(state.edges)),
	}
	for k, v := range state.types {
		s.Types[k] = v
	}
	for k, v := range state.artifacts {
		s.Artifacts[k] = domain.CloneArtifact(v)
	}
	for k, v := range state.protocols {
		s.Protocols[k] = v.Clone()
	}
	for k, v := range state.runs {
		s.Runs[k] = domain.CloneRun(v)
	}
	for k, v := range state.applications {
		s.Applications[k] = v
	}
	keys := make([]string, 0, len(state.edges))
	for k := range state.edges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Edges = append(s.Edges, domain.CloneEdge(state.edges[k]))
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Types {
		state.types[k] = v
	}
	for k, v := range s.Artifacts {
		state.artifacts[k] = domain.CloneArtifact(v)
	}
	for k, v := range s.Protocols {
		state.protocols[k] = v.Clone()
	}
	for k, v := range s.Runs {
		state.runs[k] = domain.CloneRun(v)
	}
	for k, v := range s.Applications {
		state.applications[k] = v
	}
	for _, e := range s.Edges {
		state.putEdge(domain.CloneEdge(e))
	}
	return state
}

// migrateSnapshot normalizes snapshots written by older builds or edited by
// hand: missing maps become empty, dangling edges and application references
// are dropped, and runs without a status are treated as persisted.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Types == nil {
		snapshot.Types = map[string]ArtifactType{}
	}
	if snapshot.Artifacts == nil {
		snapshot.Artifacts = map[string]Artifact{}
	}
	if snapshot.Protocols == nil {
		snapshot.Protocols = map[string]ProtocolGraph{}
	}
	if snapshot.Runs == nil {
		snapshot.Runs = map[string]RunInstance{}
	}
	if snapshot.Applications == nil {
		snapshot.Applications = map[string]ProtocolApplication{}
	}

	for id, app := range snapshot.Applications {
		if _, ok := snapshot.Runs[app.RunID]; !ok {
			delete(snapshot.Applications, id)
		}
	}

	edges := snapshot.Edges[:0:0]
	for _, e := range snapshot.Edges {
		if _, ok := snapshot.Applications[e.ApplicationID]; !ok {
			continue
		}
		if _, ok := snapshot.Artifacts[e.ArtifactID]; !ok {
			continue
		}
		edges = append(edges, e)
	}
	snapshot.Edges = edges

	for id, run := range snapshot.Runs {
		if run.Status == "" {
			run.Status = domain.RunPersisted
		}
		var appIDs []string
		for _, appID := range run.ApplicationIDs {
			if app, ok := snapshot.Applications[appID]; ok && app.RunID == id {
				appIDs = append(appIDs, appID)
			}
		}
		run.ApplicationIDs = appIDs
		snapshot.Runs[id] = run
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.types {
		cloned.types[k] = v
	}
	for k, v := range s.artifacts {
		cloned.artifacts[k] = domain.CloneArtifact(v)
	}
	for k, v := range s.protocols {
		cloned.protocols[k] = v.Clone()
	}
	for k, v := range s.runs {
		cloned.runs[k] = domain.CloneRun(v)
	}
	for k, v := range s.applications {
		cloned.applications[k] = v
	}
	for k, v := range s.edges {
		cloned.edges[k] = domain.CloneEdge(v)
	}
	for k, v := range s.byApp {
		cloned.byApp[k] = append([]string(nil), v...)
	}
	for k, v := range s.byArtifact {
		cloned.byArtifact[k] = append([]string(nil), v...)
	}
	return cloned
}

func (s *memoryState) putEdge(e Edge) {
	key := e.Key()
	if _, exists := s.edges[key]; !exists {
		s.byApp[e.ApplicationID] = append(s.byApp[e.ApplicationID], key)
		s.byArtifact[e.ArtifactID] = append(s.byArtifact[e.ArtifactID], key)
	}
	s.edges[key] = e
}

func (s *memoryState) removeEdge(key string) {
	e, ok := s.edges[key]
	if !ok {
		return
	}
	delete(s.edges, key)
	s.byApp[e.ApplicationID] = removeString(s.byApp[e.ApplicationID], key)
	if len(s.byApp[e.ApplicationID]) == 0 {
		delete(s.byApp, e.ApplicationID)
	}
	s.byArtifact[e.ArtifactID] = removeString(s.byArtifact[e.ArtifactID], key)
	if len(s.byArtifact[e.ArtifactID]) == 0 {
		delete(s.byArtifact, e.ArtifactID)
	}
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// CommitHook receives the state a transaction is about to commit. Returning
// an error aborts the transaction; the committed state stays untouched.
type CommitHook func(ctx context.Context, next Snapshot) error

// Store provides an in-memory transactional store for the lineage graph.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider. Nil restores the UTC wall clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	s.nowFn = fn
}

// SetCommitHook installs the hook durable stores use to write through before
// the new state becomes visible.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules run against the transaction's state before it is committed; a
// blocking violation, a commit hook failure or an error from fn discards
// every write.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	tx.reader = reader{state: &tx.state}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.reader, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.hook != nil {
		if err := s.hook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only view of the committed state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	return fn(reader{state: &state})
}

// transaction represents a mutation set applied to a private copy of the store state.
type transaction struct {
	reader
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return reader{state: &tx.state}
}

// CreateType registers an artifact type.
func (tx *transaction) CreateType(t ArtifactType) (ArtifactType, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if !t.Kind.Valid() {
		return ArtifactType{}, fmt.Errorf("artifact type %q: unknown kind %q", t.ID, t.Kind)
	}
	if _, exists := tx.state.types[t.ID]; exists {
		return ArtifactType{}, &domain.DuplicateError{Entity: domain.EntityArtifactType, ID: t.ID}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = tx.now
	}
	tx.state.types[t.ID] = t
	tx.recordChange(Change{Entity: domain.EntityArtifactType, Action: domain.ActionCreate, After: t})
	return t, nil
}

// CreateArtifact stores a new artifact. IDs are global: a duplicate is
// rejected whatever scope it was registered under.
func (tx *transaction) CreateArtifact(a Artifact) (Artifact, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if !a.Kind.Valid() {
		return Artifact{}, fmt.Errorf("artifact %q: unknown kind %q", a.ID, a.Kind)
	}
	if _, exists := tx.state.artifacts[a.ID]; exists {
		return Artifact{}, &domain.DuplicateError{Entity: domain.EntityArtifact, ID: a.ID}
	}
	if err := tx.checkArtifactType(a); err != nil {
		return Artifact{}, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = tx.now
	}
	tx.state.artifacts[a.ID] = domain.CloneArtifact(a)
	tx.recordChange(Change{Entity: domain.EntityArtifact, Action: domain.ActionCreate, After: domain.CloneArtifact(a)})
	return domain.CloneArtifact(a), nil
}

func (tx *transaction) checkArtifactType(a Artifact) error {
	if !a.Typed() {
		return nil
	}
	t, ok := tx.state.types[*a.TypeID]
	if !ok {
		return fmt.Errorf("artifact %q: %w", a.ID, &domain.NotFoundError{Entity: domain.EntityArtifactType, ID: *a.TypeID})
	}
	if t.Kind != a.Kind {
		return fmt.Errorf("artifact %q: type %q is a %s type", a.ID, t.ID, t.Kind)
	}
	return nil
}

// UpdateArtifact mutates an artifact. Its ID and kind are immutable.
func (tx *transaction) UpdateArtifact(id string, mutator func(*Artifact) error) (Artifact, error) {
	current, ok := tx.state.artifacts[id]
	if !ok {
		return Artifact{}, &domain.NotFoundError{Entity: domain.EntityArtifact, ID: id}
	}
	before := domain.CloneArtifact(current)
	if err := mutator(&current); err != nil {
		return Artifact{}, err
	}
	current.ID = id
	if current.Kind != before.Kind {
		return Artifact{}, fmt.Errorf("artifact %q: kind cannot change from %s to %s", id, before.Kind, current.Kind)
	}
	if err := tx.checkArtifactType(current); err != nil {
		return Artifact{}, err
	}
	tx.state.artifacts[id] = domain.CloneArtifact(current)
	tx.recordChange(Change{Entity: domain.EntityArtifact, Action: domain.ActionUpdate, Before: before, After: domain.CloneArtifact(current)})
	return domain.CloneArtifact(current), nil
}

// DeleteArtifact removes an artifact that no edge references.
func (tx *transaction) DeleteArtifact(id string) error {
	current, ok := tx.state.artifacts[id]
	if !ok {
		return &domain.NotFoundError{Entity: domain.EntityArtifact, ID: id}
	}
	if keys := tx.state.byArtifact[id]; len(keys) > 0 {
		e := tx.state.edges[keys[0]]
		return fmt.Errorf("artifact %q still referenced by application %q", id, e.ApplicationID)
	}
	delete(tx.state.artifacts, id)
	tx.recordChange(Change{Entity: domain.EntityArtifact, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateProtocol stores a validated protocol graph.
func (tx *transaction) CreateProtocol(p ProtocolGraph) (ProtocolGraph, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.protocols[p.ID]; exists {
		return ProtocolGraph{}, &domain.DuplicateError{Entity: domain.EntityProtocol, ID: p.ID}
	}
	if p.Version == 0 {
		p.Version = 1
	}
	if err := p.Validate(); err != nil {
		return ProtocolGraph{}, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = tx.now
	}
	tx.state.protocols[p.ID] = p.Clone()
	tx.recordChange(Change{Entity: domain.EntityProtocol, Action: domain.ActionCreate, After: p.Clone()})
	return p.Clone(), nil
}

// UpdateProtocol mutates a protocol graph in place. Rules decide whether an
// edit to a graph already referenced by runs may commit.
func (tx *transaction) UpdateProtocol(id string, mutator func(*ProtocolGraph) error) (ProtocolGraph, error) {
	current, ok := tx.state.protocols[id]
	if !ok {
		return ProtocolGraph{}, &domain.NotFoundError{Entity: domain.EntityProtocol, ID: id}
	}
	before := current.Clone()
	current = current.Clone()
	if err := mutator(&current); err != nil {
		return ProtocolGraph{}, err
	}
	current.ID = id
	if err := current.Validate(); err != nil {
		return ProtocolGraph{}, err
	}
	tx.state.protocols[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityProtocol, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteProtocol removes a protocol that no run references.
func (tx *transaction) DeleteProtocol(id string) error {
	current, ok := tx.state.protocols[id]
	if !ok {
		return &domain.NotFoundError{Entity: domain.EntityProtocol, ID: id}
	}
	for _, run := range tx.state.runs {
		if run.ProtocolID == id {
			return fmt.Errorf("protocol %q used by run %q: %w", id, run.ID, domain.ErrProtocolInUse)
		}
	}
	delete(tx.state.protocols, id)
	tx.recordChange(Change{Entity: domain.EntityProtocol, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateRun stores a run against an existing protocol.
func (tx *transaction) CreateRun(r RunInstance) (RunInstance, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.runs[r.ID]; exists {
		return RunInstance{}, &domain.DuplicateError{Entity: domain.EntityRun, ID: r.ID}
	}
	if _, ok := tx.state.protocols[r.ProtocolID]; !ok {
		return RunInstance{}, fmt.Errorf("run %q: %w", r.ID, &domain.NotFoundError{Entity: domain.EntityProtocol, ID: r.ProtocolID})
	}
	if r.Status == "" {
		r.Status = domain.RunPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	r.ApplicationIDs = nil
	tx.state.runs[r.ID] = domain.CloneRun(r)
	tx.recordChange(Change{Entity: domain.EntityRun, Action: domain.ActionCreate, After: domain.CloneRun(r)})
	return domain.CloneRun(r), nil
}

// UpdateRun mutates a run. ID, protocol and application list are owned by the store.
func (tx *transaction) UpdateRun(id string, mutator func(*RunInstance) error) (RunInstance, error) {
	current, ok := tx.state.runs[id]
	if !ok {
		return RunInstance{}, &domain.NotFoundError{Entity: domain.EntityRun, ID: id}
	}
	before := domain.CloneRun(current)
	current = domain.CloneRun(current)
	if err := mutator(&current); err != nil {
		return RunInstance{}, err
	}
	current.ID = id
	current.ProtocolID = before.ProtocolID
	current.ApplicationIDs = before.ApplicationIDs
	tx.state.runs[id] = domain.CloneRun(current)
	tx.recordChange(Change{Entity: domain.EntityRun, Action: domain.ActionUpdate, Before: before, After: domain.CloneRun(current)})
	return domain.CloneRun(current), nil
}

// DeleteRun removes a run, its applications and their edges. Artifacts stay.
func (tx *transaction) DeleteRun(id string) error {
	current, ok := tx.state.runs[id]
	if !ok {
		return &domain.NotFoundError{Entity: domain.EntityRun, ID: id}
	}
	for _, appID := range current.ApplicationIDs {
		keys := append([]string(nil), tx.state.byApp[appID]...)
		sort.Strings(keys)
		for _, key := range keys {
			edge := tx.state.edges[key]
			tx.state.removeEdge(key)
			tx.recordChange(Change{Entity: domain.EntityEdge, Action: domain.ActionDelete, Before: edge})
		}
		if app, ok := tx.state.applications[appID]; ok {
			delete(tx.state.applications, appID)
			tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionDelete, Before: app})
		}
	}
	delete(tx.state.runs, id)
	tx.recordChange(Change{Entity: domain.EntityRun, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateApplication stores an application for one action of the run's protocol.
func (tx *transaction) CreateApplication(app ProtocolApplication) (ProtocolApplication, error) {
	if app.ID == "" {
		app.ID = tx.store.newID()
	}
	if _, exists := tx.state.applications[app.ID]; exists {
		return ProtocolApplication{}, &domain.DuplicateError{Entity: domain.EntityApplication, ID: app.ID}
	}
	run, ok := tx.state.runs[app.RunID]
	if !ok {
		return ProtocolApplication{}, &domain.NotFoundError{Entity: domain.EntityRun, ID: app.RunID}
	}
	protocol := tx.state.protocols[run.ProtocolID]
	if _, ok := protocol.Action(app.ActionID); !ok {
		return ProtocolApplication{}, fmt.Errorf("application %q: %w", app.ID, &domain.NotFoundError{Entity: domain.EntityAction, ID: app.ActionID})
	}
	tx.state.applications[app.ID] = app
	run = domain.CloneRun(run)
	run.ApplicationIDs = append(run.ApplicationIDs, app.ID)
	tx.state.runs[run.ID] = run
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionCreate, After: app})
	return app, nil
}

// AddEdge links an existing artifact to an existing application.
func (tx *transaction) AddEdge(e Edge) (Edge, error) {
	if err := e.Validate(); err != nil {
		return Edge{}, err
	}
	if _, ok := tx.state.artifacts[e.ArtifactID]; !ok {
		return Edge{}, &domain.NotFoundError{Entity: domain.EntityArtifact, ID: e.ArtifactID}
	}
	if _, ok := tx.state.applications[e.ApplicationID]; !ok {
		return Edge{}, &domain.NotFoundError{Entity: domain.EntityApplication, ID: e.ApplicationID}
	}
	if _, exists := tx.state.edges[e.Key()]; exists {
		return Edge{}, &domain.DuplicateError{Entity: domain.EntityEdge, ID: e.Key()}
	}
	tx.state.putEdge(domain.CloneEdge(e))
	tx.recordChange(Change{Entity: domain.EntityEdge, Action: domain.ActionCreate, After: domain.CloneEdge(e)})
	return domain.CloneEdge(e), nil
}

// Read helpers ---------------------------------------------------------------

// GetArtifact retrieves an artifact by ID from committed state.
func (s *Store) GetArtifact(id string) (Artifact, bool) {
	return s.committed().FindArtifact(id)
}

// ListArtifacts returns all artifacts from committed state.
func (s *Store) ListArtifacts() []Artifact {
	return s.committed().ListArtifacts()
}

// GetType retrieves an artifact type by ID.
func (s *Store) GetType(id string) (ArtifactType, bool) {
	return s.committed().FindType(id)
}

// ListTypes returns all artifact types.
func (s *Store) ListTypes() []ArtifactType {
	return s.committed().ListTypes()
}

// GetProtocol retrieves a protocol graph by ID.
func (s *Store) GetProtocol(id string) (ProtocolGraph, bool) {
	return s.committed().FindProtocol(id)
}

// ListProtocols returns all protocol graphs.
func (s *Store) ListProtocols() []ProtocolGraph {
	return s.committed().ListProtocols()
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (RunInstance, bool) {
	return s.committed().FindRun(id)
}

// ListRuns returns all runs.
func (s *Store) ListRuns() []RunInstance {
	return s.committed().ListRuns()
}

func (s *Store) committed() reader {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	return reader{state: &state}
}
