package domain

import (
	"errors"
	"reflect"
	"testing"
)

func actionIDs(actions []ProtocolAction) []string {
	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID)
	}
	return ids
}

func chainGraph(t *testing.T) *ProtocolGraph {
	t.Helper()
	g := NewProtocolGraph("p1", "extract")
	mustNoError(t, "add A", g.AddAction(ProtocolAction{ID: "A", Sequence: 1}))
	mustNoError(t, "add B", g.AddAction(ProtocolAction{ID: "B", Sequence: 2}, "A"))
	mustNoError(t, "add C", g.AddAction(ProtocolAction{ID: "C", Sequence: 3}, "B"))
	return g
}

func TestAddActionRejectsCycle(t *testing.T) {
	g := chainGraph(t)
	before := g.Clone()

	err := g.AddPredecessor("A", "C")
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected errors.Is ErrCycle")
	}
	if want := []string{"A", "B", "C", "A"}; !reflect.DeepEqual(cycle.Path, want) {
		t.Fatalf("expected cycle path %v, got %v", want, cycle.Path)
	}
	if !reflect.DeepEqual(before, g.Clone()) {
		t.Fatalf("graph changed after rejected edge")
	}
}

func TestAddActionSelfLoop(t *testing.T) {
	g := NewProtocolGraph("p1", "loop")
	err := g.AddAction(ProtocolAction{ID: "A"}, "A")
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected cycle for self predecessor, got %v", err)
	}
	if len(g.Actions) != 0 {
		t.Fatalf("expected graph to stay empty")
	}
	mustNoError(t, "add A", g.AddAction(ProtocolAction{ID: "A"}))
	if err := g.AddPredecessor("A", "A"); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected cycle for self edge, got %v", err)
	}
}

func TestAddActionValidation(t *testing.T) {
	g := chainGraph(t)
	if err := g.AddAction(ProtocolAction{ID: "A"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := g.AddAction(ProtocolAction{ID: "D"}, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown predecessor, got %v", err)
	}
	if err := g.AddAction(ProtocolAction{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	bad := ProtocolAction{ID: "D", Specs: []ProtocolInputSpec{{Role: "in", IsInput: true, Kind: KindData, MinOccurs: 3, MaxOccurs: IntPtr(1)}}}
	if err := g.AddAction(bad, "C"); !errors.Is(err, ErrInvalidCardinality) {
		t.Fatalf("expected invalid cardinality, got %v", err)
	}
	if len(g.Actions) != 3 {
		t.Fatalf("expected failed adds to leave graph unchanged, got %d actions", len(g.Actions))
	}
	if err := g.AddPredecessor("C", "A"); err != nil {
		t.Fatalf("forward edge should be accepted: %v", err)
	}
	if err := g.AddPredecessor("C", "A"); err != nil {
		t.Fatalf("repeated edge should be a no-op: %v", err)
	}
	c, _ := g.Action("C")
	if !reflect.DeepEqual(c.Predecessors, []string{"B", "A"}) {
		t.Fatalf("unexpected predecessors %v", c.Predecessors)
	}
}

func TestTopologicalOrderTieBreak(t *testing.T) {
	g := NewProtocolGraph("p2", "fan")
	mustNoError(t, "root", g.AddAction(ProtocolAction{ID: "root", Sequence: 10}))
	mustNoError(t, "z", g.AddAction(ProtocolAction{ID: "z", Sequence: 1}, "root"))
	mustNoError(t, "y", g.AddAction(ProtocolAction{ID: "y", Sequence: 2}, "root"))
	mustNoError(t, "x", g.AddAction(ProtocolAction{ID: "x", Sequence: 2}, "root"))
	mustNoError(t, "join", g.AddAction(ProtocolAction{ID: "join", Sequence: 0}, "x", "y", "z"))
	mustNoError(t, "free", g.AddAction(ProtocolAction{ID: "free", Sequence: 5}))

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	want := []string{"free", "root", "z", "x", "y", "join"}
	if got := actionIDs(order); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestTopologicalOrderDetectsStoredCycle(t *testing.T) {
	g := ProtocolGraph{ID: "p3", Name: "broken", Actions: []ProtocolAction{
		{ID: "a", Predecessors: []string{"b"}},
		{ID: "b", Predecessors: []string{"a"}},
		{ID: "c"},
	}}
	_, err := g.TopologicalOrder()
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if !reflect.DeepEqual(cycle.Path, []string{"a", "b"}) {
		t.Fatalf("expected stuck actions a,b, got %v", cycle.Path)
	}
	if err := g.Validate(); !errors.Is(err, ErrCycle) {
		t.Fatalf("validate should surface cycle, got %v", err)
	}
}

func TestProtocolGraphValidate(t *testing.T) {
	cases := []struct {
		name  string
		graph ProtocolGraph
		want  error
	}{
		{"ok", ProtocolGraph{ID: "p", Name: "ok", Actions: []ProtocolAction{{ID: "a"}, {ID: "b", Predecessors: []string{"a"}}}}, nil},
		{"duplicate action", ProtocolGraph{ID: "p", Name: "dup", Actions: []ProtocolAction{{ID: "a"}, {ID: "a"}}}, ErrDuplicate},
		{"unknown predecessor", ProtocolGraph{ID: "p", Name: "pred", Actions: []ProtocolAction{{ID: "a", Predecessors: []string{"x"}}}}, ErrNotFound},
		{"bad range", ProtocolGraph{ID: "p", Name: "range", Actions: []ProtocolAction{{ID: "a", Specs: []ProtocolInputSpec{{Role: "r", Kind: KindMaterial, MinOccurs: -1}}}}}, ErrInvalidCardinality},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.graph.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	noName := ProtocolGraph{ID: "p"}
	if err := noName.Validate(); err == nil {
		t.Fatalf("expected name error")
	}
	badKind := ProtocolGraph{ID: "p", Name: "kind", Actions: []ProtocolAction{{ID: "a", Specs: []ProtocolInputSpec{{Role: "r", Kind: "Sample"}}}}}
	if err := badKind.Validate(); err == nil {
		t.Fatalf("expected kind error")
	}
	dupRole := ProtocolGraph{ID: "p", Name: "role", Actions: []ProtocolAction{{ID: "a", Specs: []ProtocolInputSpec{{Role: "r", Kind: KindData}, {Role: "r", Kind: KindData}}}}}
	if err := dupRole.Validate(); err == nil {
		t.Fatalf("expected duplicate role error")
	}
}

func TestProtocolGraphCloneIsDeep(t *testing.T) {
	g := chainGraph(t)
	g.Actions[1].Specs = []ProtocolInputSpec{{Role: "in", IsInput: true, Kind: KindData, TypeID: StringPtr("dc1"), MaxOccurs: IntPtr(2)}}
	cp := g.Clone()
	cp.Actions[1].Predecessors[0] = "mutated"
	*cp.Actions[1].Specs[0].TypeID = "other"
	if g.Actions[1].Predecessors[0] != "A" || *g.Actions[1].Specs[0].TypeID != "dc1" {
		t.Fatalf("clone shares state with original")
	}
}

func TestActionSpecSplit(t *testing.T) {
	a := ProtocolAction{ID: "a", Specs: []ProtocolInputSpec{
		{Role: "in", IsInput: true, Kind: KindMaterial},
		{Role: "out", Kind: KindData},
	}}
	if len(a.Inputs()) != 1 || a.Inputs()[0].Role != "in" {
		t.Fatalf("unexpected inputs %+v", a.Inputs())
	}
	if len(a.Outputs()) != 1 || a.Outputs()[0].Role != "out" {
		t.Fatalf("unexpected outputs %+v", a.Outputs())
	}
	if !a.Leaf() {
		t.Fatalf("action without predecessors should be a leaf")
	}
}

func mustNoError(t *testing.T, label string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", label, err)
	}
}
