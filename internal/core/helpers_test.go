package core

import (
	"context"
	"fmt"
	"testing"

	"lineagecore/pkg/domain"
)

const (
	typeBlood  = "blood"
	typePlasma = "plasma"
	typeAssay  = "assay"

	protocolDerive  = "derive"
	protocolGeneric = "generic"
)

func inSpec(role string, kind ArtifactKind, typeID string, minOccurs int, maxOccurs *int) ProtocolInputSpec {
	return ProtocolInputSpec{Role: role, IsInput: true, Kind: kind, TypeID: domain.StringPtr(typeID), MinOccurs: minOccurs, MaxOccurs: maxOccurs}
}

func outSpec(role string, kind ArtifactKind, typeID string, minOccurs int, maxOccurs *int) ProtocolInputSpec {
	s := inSpec(role, kind, typeID, minOccurs, maxOccurs)
	s.IsInput = false
	return s
}

// deriveProtocol splits one blood sample into plasma aliquots, then assays
// the aliquots into a single result.
func deriveProtocol() ProtocolGraph {
	g := domain.NewProtocolGraph(protocolDerive, "Derive plasma assay")
	mustNoError(nil, g.AddAction(ProtocolAction{ID: "split", Name: "Split", Sequence: 1, Specs: []ProtocolInputSpec{
		inSpec("Source", KindMaterial, typeBlood, 1, domain.IntPtr(1)),
		outSpec("Aliquot", KindMaterial, typePlasma, 1, nil),
	}}))
	mustNoError(nil, g.AddAction(ProtocolAction{ID: "assay", Name: "Assay", Sequence: 2, Specs: []ProtocolInputSpec{
		inSpec("Aliquot", KindMaterial, typePlasma, 1, nil),
		outSpec("Result", KindData, typeAssay, 1, domain.IntPtr(1)),
	}}, "split"))
	return *g
}

// genericProtocol has a single action accepting and producing any number of
// artifacts of either kind. Tests use it to wire lineage by hand.
func genericProtocol() ProtocolGraph {
	g := domain.NewProtocolGraph(protocolGeneric, "Generic step")
	mustNoError(nil, g.AddAction(ProtocolAction{ID: "step", Name: "Step", Specs: []ProtocolInputSpec{
		inSpec("material_in", KindMaterial, "", 0, nil),
		inSpec("data_in", KindData, "", 0, nil),
		outSpec("material_out", KindMaterial, "", 0, nil),
		outSpec("data_out", KindData, "", 0, nil),
	}}))
	return *g
}

func mustNoError(t *testing.T, err error) {
	if err == nil {
		return
	}
	if t == nil {
		panic(err)
	}
	t.Helper()
	t.Fatalf("unexpected error: %v", err)
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return seededService(t, NewInMemoryService(NewDefaultRulesEngine(), opts...))
}

func seededService(t *testing.T, svc *Service) *Service {
	t.Helper()
	ctx := context.Background()
	for _, typ := range []ArtifactType{
		{ID: typeBlood, Name: "Blood", Kind: KindMaterial},
		{ID: typePlasma, Name: "Plasma", Kind: KindMaterial},
		{ID: typeAssay, Name: "Assay Result", Kind: KindData},
	} {
		if _, _, err := svc.RegisterType(ctx, typ); err != nil {
			t.Fatalf("register type %s: %v", typ.ID, err)
		}
	}
	for _, p := range []ProtocolGraph{deriveProtocol(), genericProtocol()} {
		if _, _, err := svc.CreateProtocol(ctx, p); err != nil {
			t.Fatalf("create protocol %s: %v", p.ID, err)
		}
	}
	return svc
}

func newArtifact(t *testing.T, svc *Service, id string, kind ArtifactKind, typeID string) Artifact {
	t.Helper()
	a, _, err := svc.CreateArtifact(context.Background(), Artifact{
		ID:        id,
		Name:      id,
		Kind:      kind,
		TypeID:    domain.StringPtr(typeID),
		ScopeID:   "lab",
		CreatedBy: "alice",
	})
	if err != nil {
		t.Fatalf("create artifact %s: %v", id, err)
	}
	return a
}

// link records a generic run consuming inputs and producing outputs. It
// writes straight to the store so tests can shape any lineage, including
// artifacts produced by several runs.
func link(t *testing.T, store PersistentStore, runID string, inputs, outputs []string) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateRun(RunInstance{ID: runID, ProtocolID: protocolGeneric, Status: domain.RunPersisted}); err != nil {
			return err
		}
		app, err := tx.CreateApplication(ProtocolApplication{ID: runID + "-app", RunID: runID, ActionID: "step", Sequence: 1})
		if err != nil {
			return err
		}
		add := func(id string, dir domain.EdgeDirection) error {
			a, ok := tx.FindArtifact(id)
			if !ok {
				return fmt.Errorf("artifact %s missing", id)
			}
			_, err := tx.AddEdge(Edge{ArtifactID: id, ApplicationID: app.ID, Role: genericRole(a.Kind, dir), Direction: dir})
			return err
		}
		for _, id := range inputs {
			if err := add(id, domain.EdgeInput); err != nil {
				return err
			}
		}
		for _, id := range outputs {
			if err := add(id, domain.EdgeOutput); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("link run %s: %v", runID, err)
	}
}

func genericRole(kind ArtifactKind, dir domain.EdgeDirection) string {
	prefix := "material"
	if kind == KindData {
		prefix = "data"
	}
	if dir == domain.EdgeInput {
		return prefix + "_in"
	}
	return prefix + "_out"
}

func material(id string) TypeRef { return TypeRef{Kind: KindMaterial, TypeID: id} }
