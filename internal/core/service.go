package core

import (
	"context"
	"time"

	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/pkg/domain"
)

// Service exposes the lineage core: transactional CRUD for types, artifacts,
// protocols and runs, run instantiation, closure queries and input matching.
// Every public operation is traced, measured and logged; mutating operations
// are audited.
type Service struct {
	store    PersistentStore
	cfg      Config
	criteria *CriteriaRegistry
	types    *TypeRegistry
	matcher  *CompatibilityMatcher
	closure  *ClosureEngine
	index    *AncestorIndex

	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// Option customises a Service.
type Option func(*Service)

// WithLogger routes operation logs to logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for audit timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder installs a metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder installs an audit sink.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithConfig replaces the service configuration.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithCriteriaRegistry replaces the default criteria registry.
func WithCriteriaRegistry(reg *CriteriaRegistry) Option {
	return func(s *Service) {
		if reg != nil {
			s.criteria = reg
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cfg:     DefaultConfig(),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
	}
	if clocked, ok := store.(interface{ NowFunc() func() time.Time }); ok {
		if fn := clocked.NowFunc(); fn != nil {
			s.clock = ClockFunc(fn)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = ClockFunc(func() time.Time { return time.Now().UTC() })
	}
	if s.criteria == nil {
		s.criteria = NewDefaultCriteriaRegistry()
	}
	s.cfg = s.cfg.withDefaults()
	s.types = NewTypeRegistry(s.cfg.TypeCacheSize, s.cfg.TypeCacheTTL)
	s.matcher = NewCompatibilityMatcher(s.types, s.criteria)
	s.closure = NewClosureEngine(s.cfg.MaxDepth)
	if s.cfg.IndexSize > 0 {
		s.index = NewAncestorIndex(s.closure, s.cfg.IndexSize, s.cfg.IndexTTL)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Criteria returns the registry consulted by the matcher.
func (s *Service) Criteria() *CriteriaRegistry { return s.criteria }

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// AncestorIndex returns the lookup index, or nil when disabled.
func (s *Service) AncestorIndex() *AncestorIndex { return s.index }

func (s *Service) now() time.Time {
	return s.clock.Now()
}

// run wraps one operation with tracing, metrics, logging and auditing. fn
// returns the id of the entity it touched for the audit trail.
func (s *Service) run(ctx context.Context, operation string, fn func(ctx context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	entityID, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Error("lineage operation failed", "operation", operation, "entity_id", entityID, "duration", duration, "error", err)
		s.recordAuditError(ctx, operation, entityID, duration, err)
		return err
	}
	s.logger.Debug("lineage operation completed", "operation", operation, "entity_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, operation, entityID, duration)
	return nil
}

// logViolations reports non-blocking rule outcomes that still committed.
func (s *Service) logViolations(operation string, res Result) {
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", operation, "rule", v.Rule, "severity", v.Severity, "entity", v.Entity, "entity_id", v.EntityID, "message", v.Message)
	}
}

// RegisterType persists a data class or sample type.
func (s *Service) RegisterType(ctx context.Context, t ArtifactType) (ArtifactType, Result, error) {
	var created ArtifactType
	var res Result
	err := s.run(ctx, "register_type", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			created, err = tx.CreateType(t)
			return err
		})
		return firstNonEmpty(created.ID, t.ID), err
	})
	if err == nil {
		s.types.Forget(created.ID)
		s.logViolations("register_type", res)
	}
	return created, res, err
}

// CreateArtifact persists an artifact, minting an LSID when none is given.
func (s *Service) CreateArtifact(ctx context.Context, a Artifact) (Artifact, Result, error) {
	var created Artifact
	var res Result
	if a.ID == "" && a.Kind.Valid() {
		a.ID = MintLSID(s.cfg.LSIDAuthority, a.Kind)
	}
	err := s.run(ctx, "create_artifact", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			created, err = tx.CreateArtifact(a)
			return err
		})
		return a.ID, err
	})
	if err == nil {
		s.logViolations("create_artifact", res)
	}
	return created, res, err
}

// GetArtifact returns a committed artifact.
func (s *Service) GetArtifact(ctx context.Context, id string) (Artifact, error) {
	var found Artifact
	err := s.run(ctx, "get_artifact", func(ctx context.Context) (string, error) {
		return id, s.store.View(ctx, func(view TransactionView) error {
			var ok bool
			found, ok = view.FindArtifact(id)
			if !ok {
				return &domain.NotFoundError{Entity: domain.EntityArtifact, ID: id}
			}
			return nil
		})
	})
	return found, err
}

// CreateProtocol persists a validated protocol graph.
func (s *Service) CreateProtocol(ctx context.Context, p ProtocolGraph) (ProtocolGraph, Result, error) {
	var created ProtocolGraph
	var res Result
	err := s.run(ctx, "create_protocol", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			created, err = tx.CreateProtocol(p)
			return err
		})
		return firstNonEmpty(created.ID, p.ID), err
	})
	if err == nil {
		s.logViolations("create_protocol", res)
	}
	return created, res, err
}

// CreateProtocolVersion copies an existing protocol under a new id and the
// next version number, applies mutate to the copy and persists it. The
// original stays untouched, so runs keep pointing at the graph they used.
func (s *Service) CreateProtocolVersion(ctx context.Context, baseID, newID string, mutate func(*ProtocolGraph) error) (ProtocolGraph, Result, error) {
	var created ProtocolGraph
	var res Result
	err := s.run(ctx, "create_protocol_version", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			base, ok := tx.FindProtocol(baseID)
			if !ok {
				return &domain.NotFoundError{Entity: domain.EntityProtocol, ID: baseID}
			}
			next := base.Clone()
			next.ID = newID
			next.Version = latestVersion(tx, base.Name) + 1
			next.CreatedAt = time.Time{}
			if mutate != nil {
				if err := mutate(&next); err != nil {
					return err
				}
			}
			created, err = tx.CreateProtocol(next)
			return err
		})
		return firstNonEmpty(created.ID, newID), err
	})
	if err == nil {
		s.logViolations("create_protocol_version", res)
	}
	return created, res, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func latestVersion(view LineageReader, name string) int {
	latest := 0
	for _, p := range view.ListProtocols() {
		if p.Name == name && p.Version > latest {
			latest = p.Version
		}
	}
	return latest
}

// GetProtocol returns a committed protocol graph.
func (s *Service) GetProtocol(ctx context.Context, id string) (ProtocolGraph, error) {
	var found ProtocolGraph
	err := s.run(ctx, "get_protocol", func(ctx context.Context) (string, error) {
		return id, s.store.View(ctx, func(view TransactionView) error {
			var ok bool
			found, ok = view.FindProtocol(id)
			if !ok {
				return &domain.NotFoundError{Entity: domain.EntityProtocol, ID: id}
			}
			return nil
		})
	})
	return found, err
}

// DeleteProtocol removes a protocol no run references.
func (s *Service) DeleteProtocol(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_protocol", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteProtocol(id)
		})
		return id, err
	})
	return res, err
}

// InstantiateRun validates req against its protocol and, when every input
// and output checks out, writes the run with its applications, new artifacts
// and edges in one transaction. On failure nothing is written and the
// returned run carries the aborted status.
func (s *Service) InstantiateRun(ctx context.Context, req RunRequest) (RunOutcome, Result, error) {
	req = req.withRunID()
	var outcome RunOutcome
	var res Result
	var touched []string
	err := s.run(ctx, "instantiate_run", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			p := &planner{matcher: s.matcher, authority: s.cfg.LSIDAuthority, view: tx, req: req}
			plan, err := p.plan(ctx)
			if err != nil {
				return err
			}
			outcome, err = plan.write(tx)
			touched = plan.touched()
			return err
		})
		return firstNonEmpty(outcome.Run.ID, req.ID), err
	})
	if err != nil {
		return RunOutcome{Run: abortedRun(req)}, res, err
	}
	s.logViolations("instantiate_run", res)
	s.invalidate(ctx, touched)
	return outcome, res, nil
}

func abortedRun(req RunRequest) RunInstance {
	return RunInstance{
		ID:         req.ID,
		Name:       req.Name,
		ProtocolID: req.ProtocolID,
		ScopeID:    req.ScopeID,
		CreatedBy:  req.User,
		Status:     domain.RunAborted,
	}
}

// GetRun returns a committed run.
func (s *Service) GetRun(ctx context.Context, id string) (RunInstance, error) {
	var found RunInstance
	err := s.run(ctx, "get_run", func(ctx context.Context) (string, error) {
		return id, s.store.View(ctx, func(view TransactionView) error {
			var ok bool
			found, ok = view.FindRun(id)
			if !ok {
				return &domain.NotFoundError{Entity: domain.EntityRun, ID: id}
			}
			return nil
		})
	})
	return found, err
}

// DeleteRun removes a run with its applications and edges. Artifacts stay;
// one left without a producer while still consumed elsewhere is handled by
// the orphaned_artifact rule.
func (s *Service) DeleteRun(ctx context.Context, id string) (Result, error) {
	var res Result
	var stale StaleRoots
	err := s.run(ctx, "delete_run", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if s.index != nil {
				// lineage through the run disappears with it, so stale roots
				// are collected before the delete
				var err error
				stale, err = s.index.Affected(ctx, tx, runArtifacts(tx, id))
				if err != nil {
					return err
				}
			}
			return tx.DeleteRun(id)
		})
		return id, err
	})
	if err == nil {
		s.logViolations("delete_run", res)
		if s.index != nil {
			s.index.Drop(stale)
		}
	}
	return res, err
}

func runArtifacts(view LineageReader, runID string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, app := range view.RunApplications(runID) {
		for _, e := range view.ApplicationEdges(app.ID) {
			if _, dup := seen[e.ArtifactID]; dup {
				continue
			}
			seen[e.ArtifactID] = struct{}{}
			out = append(out, e.ArtifactID)
		}
	}
	return out
}

// invalidate drops index entries affected by a committed lineage change.
func (s *Service) invalidate(ctx context.Context, artifactIDs []string) {
	if s.index == nil || len(artifactIDs) == 0 {
		return
	}
	err := s.store.View(ctx, func(view TransactionView) error {
		return s.index.Invalidate(ctx, view, artifactIDs)
	})
	if err != nil {
		s.logger.Warn("ancestor index purged", "error", err)
	}
}

// ReplayLineage applies externally recorded lineage, such as an imported
// archive, in one transaction. fn returns the id of the run it wrote and the
// artifacts whose lineage changed so the ancestor index can drop them.
func (s *Service) ReplayLineage(ctx context.Context, fn func(tx Transaction) (runID string, touched []string, err error)) (Result, error) {
	var res Result
	var touched []string
	err := s.run(ctx, "replay_lineage", func(ctx context.Context) (string, error) {
		var runID string
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var ferr error
			runID, touched, ferr = fn(tx)
			return ferr
		})
		return runID, err
	})
	if err != nil {
		return res, err
	}
	s.logViolations("replay_lineage", res)
	s.invalidate(ctx, touched)
	return res, nil
}

// Closure lists artifacts of q.Target's type reachable from q.Root.
func (s *Service) Closure(ctx context.Context, q ClosureQuery) (ClosureResult, error) {
	var out ClosureResult
	err := s.run(ctx, "closure", func(ctx context.Context) (string, error) {
		return q.Root, s.store.View(ctx, func(view TransactionView) error {
			var err error
			out, err = s.closure.Closure(ctx, view, q)
			return err
		})
	})
	return out, err
}

// ScalarLookup answers a single-valued lookup, reporting ambiguity instead of
// choosing. Results come from the ancestor index when enabled.
func (s *Service) ScalarLookup(ctx context.Context, root string, target TypeRef, dir Direction) (Lookup, error) {
	var out Lookup
	err := s.run(ctx, "scalar_lookup", func(ctx context.Context) (string, error) {
		epoch := s.indexEpoch()
		return root, s.store.View(ctx, func(view TransactionView) error {
			var err error
			out, err = s.scalar(ctx, view, epoch, root, target, dir)
			return err
		})
	})
	return out, err
}

func (s *Service) indexEpoch() uint64 {
	if s.index == nil {
		return 0
	}
	return s.index.Epoch()
}

func (s *Service) scalar(ctx context.Context, view LineageReader, epoch uint64, root string, target TypeRef, dir Direction) (Lookup, error) {
	if s.index != nil {
		return s.index.LookupSince(ctx, view, epoch, root, target, dir)
	}
	return s.closure.ScalarLookup(ctx, view, root, target, dir)
}

// LookupPath chains scalar lookups. See ClosureEngine.LookupPath.
func (s *Service) LookupPath(ctx context.Context, root string, dir Direction, hops ...TypeRef) (Lookup, error) {
	var out Lookup
	err := s.run(ctx, "lookup_path", func(ctx context.Context) (string, error) {
		epoch := s.indexEpoch()
		return root, s.store.View(ctx, func(view TransactionView) error {
			var err error
			out, err = lookupPath(ctx, root, hops, func(ctx context.Context, root string, target TypeRef) (Lookup, error) {
				return s.scalar(ctx, view, epoch, root, target, dir)
			})
			return err
		})
	})
	return out, err
}

// MatchInput runs the compatibility matcher for one candidate.
func (s *Service) MatchInput(ctx context.Context, req MatchRequest) (MatchResult, error) {
	var out MatchResult
	err := s.run(ctx, "match_input", func(ctx context.Context) (string, error) {
		return req.Artifact.ID, s.store.View(ctx, func(view TransactionView) error {
			var err error
			out, err = s.matcher.Match(ctx, view, req)
			return err
		})
	})
	return out, err
}

// RebuildAncestorIndex recomputes ancestor lookups of every artifact for
// every registered type. It is a no-op when the index is disabled.
func (s *Service) RebuildAncestorIndex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	return s.run(ctx, "rebuild_ancestor_index", func(ctx context.Context) (string, error) {
		return "", s.store.View(ctx, func(view TransactionView) error {
			types := view.ListTypes()
			targets := make([]TypeRef, 0, len(types))
			for _, t := range types {
				targets = append(targets, TypeRef{Kind: t.Kind, TypeID: t.ID})
			}
			return s.index.Rebuild(ctx, view, targets)
		})
	})
}
