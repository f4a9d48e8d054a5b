package domain

import (
	"fmt"
	"sort"
	"time"
)

// ProtocolAction is one processing step of a protocol graph.
type ProtocolAction struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Sequence     int                 `json:"sequence"`
	Predecessors []string            `json:"predecessors,omitempty"`
	Specs        []ProtocolInputSpec `json:"specs,omitempty"`
}

// Inputs returns the specs describing consumed artifacts.
func (a ProtocolAction) Inputs() []ProtocolInputSpec {
	return a.filterSpecs(true)
}

// Outputs returns the specs describing produced artifacts.
func (a ProtocolAction) Outputs() []ProtocolInputSpec {
	return a.filterSpecs(false)
}

// Leaf reports whether the action has no predecessors and therefore draws
// its inputs from the artifacts supplied to the run.
func (a ProtocolAction) Leaf() bool {
	return len(a.Predecessors) == 0
}

func (a ProtocolAction) filterSpecs(input bool) []ProtocolInputSpec {
	var out []ProtocolInputSpec
	for _, s := range a.Specs {
		if s.IsInput == input {
			out = append(out, s)
		}
	}
	return out
}

func cloneAction(a ProtocolAction) ProtocolAction {
	cp := a
	cp.Predecessors = append([]string(nil), a.Predecessors...)
	if a.Specs != nil {
		cp.Specs = make([]ProtocolInputSpec, len(a.Specs))
		for i, s := range a.Specs {
			cp.Specs[i] = cloneSpec(s)
		}
	}
	return cp
}

// ProtocolGraph is a named, versioned template: actions plus predecessor
// edges that must form a DAG. A graph referenced by a run is never edited in
// place; changes produce a new version.
type ProtocolGraph struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Version     int              `json:"version"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Actions     []ProtocolAction `json:"actions"`
}

// NewProtocolGraph returns an empty graph at version 1.
func NewProtocolGraph(id, name string) *ProtocolGraph {
	return &ProtocolGraph{ID: id, Name: name, Version: 1}
}

// Clone returns a deep copy of the graph.
func (g ProtocolGraph) Clone() ProtocolGraph {
	cp := g
	if g.Actions != nil {
		cp.Actions = make([]ProtocolAction, len(g.Actions))
		for i, a := range g.Actions {
			cp.Actions[i] = cloneAction(a)
		}
	}
	return cp
}

// Action looks up an action by id.
func (g *ProtocolGraph) Action(id string) (ProtocolAction, bool) {
	for _, a := range g.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return ProtocolAction{}, false
}

func (g *ProtocolGraph) indexOf(id string) int {
	for i, a := range g.Actions {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// AddAction appends action to the graph with the union of action.Predecessors
// and predecessors as its incoming edges. Predecessors must already be part of
// the graph. The graph is left unchanged on error.
func (g *ProtocolGraph) AddAction(action ProtocolAction, predecessors ...string) error {
	if action.ID == "" {
		return fmt.Errorf("protocol %q: action id required", g.ID)
	}
	if g.indexOf(action.ID) >= 0 {
		return &DuplicateError{Entity: EntityAction, ID: action.ID}
	}
	preds := dedupe(append(append([]string(nil), action.Predecessors...), predecessors...))
	for _, p := range preds {
		if p == action.ID {
			return &CycleError{ProtocolID: g.ID, Path: []string{action.ID, action.ID}}
		}
		if g.indexOf(p) < 0 {
			return &NotFoundError{Entity: EntityAction, ID: p}
		}
	}
	for _, s := range action.Specs {
		if err := s.ValidateRange(); err != nil {
			return err
		}
	}
	added := cloneAction(action)
	added.Predecessors = preds
	g.Actions = append(g.Actions, added)
	return nil
}

// AddPredecessor adds the edge predecessorID -> actionID between two existing
// actions. It fails with a CycleError when actionID already reaches
// predecessorID, leaving the graph unchanged.
func (g *ProtocolGraph) AddPredecessor(actionID, predecessorID string) error {
	idx := g.indexOf(actionID)
	if idx < 0 {
		return &NotFoundError{Entity: EntityAction, ID: actionID}
	}
	if g.indexOf(predecessorID) < 0 {
		return &NotFoundError{Entity: EntityAction, ID: predecessorID}
	}
	if actionID == predecessorID {
		return &CycleError{ProtocolID: g.ID, Path: []string{actionID, actionID}}
	}
	if path := g.pathBetween(actionID, predecessorID); path != nil {
		return &CycleError{ProtocolID: g.ID, Path: append(path, actionID)}
	}
	for _, p := range g.Actions[idx].Predecessors {
		if p == predecessorID {
			return nil
		}
	}
	g.Actions[idx].Predecessors = append(g.Actions[idx].Predecessors, predecessorID)
	return nil
}

// pathBetween returns a successor path from -> ... -> to, or nil.
func (g *ProtocolGraph) pathBetween(from, to string) []string {
	successors := g.successors()
	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			var path []string
			for n := to; n != ""; n = parent[n] {
				path = append([]string{n}, path...)
			}
			return path
		}
		for _, next := range successors[cur] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			queue = append(queue, next)
		}
	}
	return nil
}

func (g *ProtocolGraph) successors() map[string][]string {
	out := make(map[string][]string, len(g.Actions))
	for _, a := range g.Actions {
		for _, p := range a.Predecessors {
			out[p] = append(out[p], a.ID)
		}
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}

// TopologicalOrder returns the actions ordered so every predecessor comes
// first. Among ready actions the lowest Sequence wins, then the lowest id.
func (g *ProtocolGraph) TopologicalOrder() ([]ProtocolAction, error) {
	indeg := make(map[string]int, len(g.Actions))
	byID := make(map[string]ProtocolAction, len(g.Actions))
	for _, a := range g.Actions {
		byID[a.ID] = a
		indeg[a.ID] += 0
		for range dedupe(a.Predecessors) {
			indeg[a.ID]++
		}
	}
	successors := g.successors()

	var ready []ProtocolAction
	for _, a := range g.Actions {
		if indeg[a.ID] == 0 {
			ready = append(ready, a)
		}
	}
	out := make([]ProtocolAction, 0, len(g.Actions))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].Sequence != ready[j].Sequence {
				return ready[i].Sequence < ready[j].Sequence
			}
			return ready[i].ID < ready[j].ID
		})
		next := ready[0]
		ready = ready[1:]
		out = append(out, cloneAction(next))
		for _, s := range dedupe(successors[next.ID]) {
			indeg[s]--
			if indeg[s] == 0 {
				ready = append(ready, byID[s])
			}
		}
	}
	if len(out) != len(g.Actions) {
		var stuck []string
		for _, a := range g.Actions {
			if indeg[a.ID] > 0 {
				stuck = append(stuck, a.ID)
			}
		}
		sort.Strings(stuck)
		return nil, &CycleError{ProtocolID: g.ID, Path: stuck}
	}
	return out, nil
}

// Validate checks identifiers, predecessor references, spec ranges and
// acyclicity. Graphs loaded from storage or definitions go through here
// before use.
func (g *ProtocolGraph) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("protocol %q: name required", g.ID)
	}
	seen := make(map[string]struct{}, len(g.Actions))
	for _, a := range g.Actions {
		if a.ID == "" {
			return fmt.Errorf("protocol %q: action id required", g.ID)
		}
		if _, dup := seen[a.ID]; dup {
			return &DuplicateError{Entity: EntityAction, ID: a.ID}
		}
		seen[a.ID] = struct{}{}
	}
	for _, a := range g.Actions {
		for _, p := range a.Predecessors {
			if _, ok := seen[p]; !ok {
				return &NotFoundError{Entity: EntityAction, ID: p}
			}
		}
		roles := make(map[string]struct{}, len(a.Specs))
		for _, s := range a.Specs {
			if !s.Kind.Valid() {
				return fmt.Errorf("protocol %q action %q role %q: unknown artifact kind %q", g.ID, a.ID, s.Role, s.Kind)
			}
			if _, dup := roles[s.Role]; dup {
				return fmt.Errorf("protocol %q action %q: role %q declared twice", g.ID, a.ID, s.Role)
			}
			roles[s.Role] = struct{}{}
			if err := s.ValidateRange(); err != nil {
				return err
			}
		}
	}
	_, err := g.TopologicalOrder()
	return err
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
