package core

import (
	"context"
	"fmt"
	"sort"

	"lineagecore/pkg/domain"
)

// Direction selects which way a closure walks the lineage graph.
type Direction string

const (
	Ancestors   Direction = "ancestors"
	Descendants Direction = "descendants"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Ancestors || d == Descendants
}

// ClosureQuery asks for every artifact of Target's type reachable from Root.
type ClosureQuery struct {
	Root      string
	Target    TypeRef
	Direction Direction
	// MaxDepth bounds the walk in artifact generations; zero means the engine default.
	MaxDepth int
	// Role, when set, only follows edges carrying that role.
	Role string
}

// ClosureResult lists matching artifact ids in lexical order.
type ClosureResult struct {
	Matches []string
	Count   int
	// Depth is the number of generations that yielded new artifacts.
	Depth int
}

// ClosureEngine answers ancestor and descendant queries with a breadth-first
// walk over artifact generations. One generation is artifact -> application
// -> artifact. Each artifact is visited once, so diamonds and shared inputs
// are counted once and the walk terminates on any graph.
type ClosureEngine struct {
	maxDepth int
}

// NewClosureEngine returns an engine bounded at maxDepth generations.
func NewClosureEngine(maxDepth int) *ClosureEngine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &ClosureEngine{maxDepth: maxDepth}
}

// MaxDepth reports the engine's default bound.
func (e *ClosureEngine) MaxDepth() int { return e.maxDepth }

// Closure runs q against view. The root itself is never part of the result.
// Lineage that continues past the bound fails the query instead of being cut.
func (e *ClosureEngine) Closure(ctx context.Context, view LineageReader, q ClosureQuery) (ClosureResult, error) {
	if !q.Direction.Valid() {
		return ClosureResult{}, fmt.Errorf("closure: unknown direction %q", q.Direction)
	}
	if _, ok := view.FindArtifact(q.Root); !ok {
		return ClosureResult{}, &domain.NotFoundError{Entity: domain.EntityArtifact, ID: q.Root}
	}
	if err := checkTarget(view, q.Target); err != nil {
		return ClosureResult{}, err
	}
	limit := q.MaxDepth
	if limit <= 0 {
		limit = e.maxDepth
	}

	visited := map[string]struct{}{q.Root: {}}
	frontier := []string{q.Root}
	var matches []string
	depth := 0
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return ClosureResult{}, err
		}
		next := e.expand(view, frontier, q.Direction, q.Role, visited)
		if len(next) == 0 {
			break
		}
		if depth == limit {
			return ClosureResult{}, &domain.DepthExceededError{Root: q.Root, MaxDepth: limit}
		}
		depth++
		for _, id := range next {
			artifact, ok := view.FindArtifact(id)
			if !ok {
				return ClosureResult{}, &domain.NotFoundError{Entity: domain.EntityArtifact, ID: id}
			}
			if q.Target.Kind == "" || q.Target.Matches(artifact) {
				matches = append(matches, id)
			}
		}
		frontier = next
	}
	sort.Strings(matches)
	return ClosureResult{Matches: matches, Count: len(matches), Depth: depth}, nil
}

// checkTarget accepts the zero TypeRef (every kind), a bare valid kind, or a
// registered type of that kind.
func checkTarget(view LineageReader, t TypeRef) error {
	if t.Kind == "" {
		if t.TypeID != "" {
			return fmt.Errorf("closure: target type %q has no kind", t.TypeID)
		}
		return nil
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("closure: unknown target kind %q", t.Kind)
	}
	if t.TypeID == "" {
		return nil
	}
	typ, ok := view.FindType(t.TypeID)
	if !ok {
		return &domain.NotFoundError{Entity: domain.EntityArtifactType, ID: t.TypeID}
	}
	if typ.Kind != t.Kind {
		return fmt.Errorf("closure: type %s holds %s artifacts, not %s", typ.ID, typ.Kind, t.Kind)
	}
	return nil
}

// expand returns the unvisited artifacts one generation away from frontier
// and marks them visited.
func (e *ClosureEngine) expand(view LineageReader, frontier []string, dir Direction, role string, visited map[string]struct{}) []string {
	var next []string
	seenApps := make(map[string]struct{})
	for _, id := range frontier {
		var apps []ProtocolApplication
		var follow EdgeDirection
		if dir == Ancestors {
			apps, follow = view.ProducingApplications(id), domain.EdgeInput
		} else {
			apps, follow = view.ConsumingApplications(id), domain.EdgeOutput
		}
		for _, app := range apps {
			if _, dup := seenApps[app.ID]; dup {
				continue
			}
			seenApps[app.ID] = struct{}{}
			for _, edge := range view.ApplicationEdges(app.ID) {
				if edge.Direction != follow {
					continue
				}
				if role != "" && edge.Role != role {
					continue
				}
				if _, seen := visited[edge.ArtifactID]; seen {
					continue
				}
				visited[edge.ArtifactID] = struct{}{}
				next = append(next, edge.ArtifactID)
			}
		}
	}
	sort.Strings(next)
	return next
}

// Reach returns every artifact reachable from roots in dir, roots included,
// without a depth bound. Index invalidation uses it to find stale entries.
func (e *ClosureEngine) Reach(ctx context.Context, view LineageReader, roots []string, dir Direction) (map[string]struct{}, error) {
	visited := make(map[string]struct{}, len(roots))
	frontier := make([]string, 0, len(roots))
	for _, id := range roots {
		if _, dup := visited[id]; dup {
			continue
		}
		visited[id] = struct{}{}
		frontier = append(frontier, id)
	}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frontier = e.expand(view, frontier, dir, "", visited)
	}
	return visited, nil
}
