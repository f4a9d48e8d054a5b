package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"lineagecore/pkg/domain"
)

func seedProtocol() domain.ProtocolGraph {
	return domain.ProtocolGraph{
		ID:   "proto",
		Name: "extract",
		Actions: []domain.ProtocolAction{
			{ID: "step", Sequence: 1, Specs: []domain.ProtocolInputSpec{
				{Role: "in", IsInput: true, Kind: domain.KindMaterial},
				{Role: "out", Kind: domain.KindData},
			}},
		},
	}
}

// seedRun writes in -> app -> out and returns the store.
func seedRun(t *testing.T) *Store {
	t.Helper()
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateType(domain.ArtifactType{ID: "st", Name: "Blood", Kind: domain.KindMaterial}); err != nil {
			return err
		}
		if _, err := tx.CreateArtifact(domain.Artifact{ID: "in", Kind: domain.KindMaterial, TypeID: domain.StringPtr("st")}); err != nil {
			return err
		}
		if _, err := tx.CreateArtifact(domain.Artifact{ID: "out", Kind: domain.KindData}); err != nil {
			return err
		}
		if _, err := tx.CreateProtocol(seedProtocol()); err != nil {
			return err
		}
		if _, err := tx.CreateRun(domain.RunInstance{ID: "run", ProtocolID: "proto"}); err != nil {
			return err
		}
		if _, err := tx.CreateApplication(domain.ProtocolApplication{ID: "app", RunID: "run", ActionID: "step"}); err != nil {
			return err
		}
		if _, err := tx.AddEdge(domain.Edge{ArtifactID: "in", ApplicationID: "app", Role: "in", Direction: domain.EdgeInput}); err != nil {
			return err
		}
		_, err := tx.AddEdge(domain.Edge{ArtifactID: "out", ApplicationID: "app", Role: "out", Direction: domain.EdgeOutput})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := seedRun(t)

	run, ok := store.GetRun("run")
	if !ok || run.Status != domain.RunPending || len(run.ApplicationIDs) != 1 {
		t.Fatalf("unexpected run %+v", run)
	}
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		producers := v.ProducingApplications("out")
		if len(producers) != 1 || producers[0].ID != "app" {
			t.Fatalf("expected app to produce out, got %+v", producers)
		}
		consumers := v.ConsumingApplications("in")
		if len(consumers) != 1 || consumers[0].ID != "app" {
			t.Fatalf("expected app to consume in, got %+v", consumers)
		}
		if len(v.ProducingApplications("in")) != 0 {
			t.Fatalf("in has no producer")
		}
		if edges := v.ApplicationEdges("app"); len(edges) != 2 || edges[0].Direction != domain.EdgeInput {
			t.Fatalf("unexpected edges %+v", edges)
		}
		if runs := v.RunsForProtocol("proto"); len(runs) != 1 {
			t.Fatalf("expected one run for protocol")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListArtifacts()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListArtifacts()) != 2 || len(store.ListRuns()) != 1 || len(store.ListTypes()) != 1 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
}

func TestStoreFailedTransactionLeavesNoTrace(t *testing.T) {
	store := seedRun(t)
	before := store.ExportState()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateArtifact(domain.Artifact{ID: "tmp", Kind: domain.KindData}); err != nil {
			return err
		}
		if err := tx.DeleteRun("run"); err != nil {
			return err
		}
		if _, ok := tx.FindRun("run"); ok {
			t.Fatalf("transaction should observe its own delete")
		}
		return fmt.Errorf("abort")
	})
	if err == nil {
		t.Fatalf("expected abort error")
	}
	after := store.ExportState()
	if len(after.Artifacts) != len(before.Artifacts) || len(after.Edges) != len(before.Edges) || len(after.Runs) != 1 {
		t.Fatalf("aborted transaction leaked writes")
	}
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateArtifact(domain.Artifact{ID: "x", Kind: domain.KindData})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if _, ok := store.GetArtifact("x"); ok {
		t.Fatalf("blocked transaction must not commit")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	res.Merge(domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}})
	return res, nil
}

func TestStoreCancelledContext(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before fn, got %v (called=%v)", err, called)
	}
	if err := store.View(ctx, func(domain.TransactionView) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled view, got %v", err)
	}
}

func TestDeleteRunCascadesButKeepsArtifacts(t *testing.T) {
	store := seedRun(t)
	var changes int
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if err := tx.DeleteRun("run"); err != nil {
			return err
		}
		changes = len(tx.(*transaction).changes)
		return nil
	})
	if err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if changes != 4 {
		t.Fatalf("expected 2 edge, 1 application and 1 run change, got %d", changes)
	}
	if _, ok := store.GetRun("run"); ok {
		t.Fatalf("run still present")
	}
	if len(store.ListArtifacts()) != 2 {
		t.Fatalf("artifacts must survive run deletion")
	}
	state := store.ExportState()
	if len(state.Applications) != 0 || len(state.Edges) != 0 {
		t.Fatalf("expected applications and edges removed, got %+v", state)
	}
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		if len(v.ProducingApplications("out")) != 0 {
			t.Fatalf("index still references deleted application")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestStoreConstraintErrors(t *testing.T) {
	store := seedRun(t)
	ctx := context.Background()
	cases := []struct {
		name string
		fn   func(tx domain.Transaction) error
		want error
	}{
		{"duplicate artifact", func(tx domain.Transaction) error {
			_, err := tx.CreateArtifact(domain.Artifact{ID: "in", Kind: domain.KindMaterial, ScopeID: "elsewhere"})
			return err
		}, domain.ErrDuplicate},
		{"unknown type", func(tx domain.Transaction) error {
			_, err := tx.CreateArtifact(domain.Artifact{ID: "n", Kind: domain.KindMaterial, TypeID: domain.StringPtr("nope")})
			return err
		}, domain.ErrNotFound},
		{"edge to missing artifact", func(tx domain.Transaction) error {
			_, err := tx.AddEdge(domain.Edge{ArtifactID: "missing", ApplicationID: "app", Direction: domain.EdgeInput})
			return err
		}, domain.ErrNotFound},
		{"duplicate edge", func(tx domain.Transaction) error {
			_, err := tx.AddEdge(domain.Edge{ArtifactID: "in", ApplicationID: "app", Role: "in", Direction: domain.EdgeInput})
			return err
		}, domain.ErrDuplicate},
		{"run for missing protocol", func(tx domain.Transaction) error {
			_, err := tx.CreateRun(domain.RunInstance{ProtocolID: "missing"})
			return err
		}, domain.ErrNotFound},
		{"application for unknown action", func(tx domain.Transaction) error {
			_, err := tx.CreateApplication(domain.ProtocolApplication{RunID: "run", ActionID: "nope"})
			return err
		}, domain.ErrNotFound},
		{"delete referenced protocol", func(tx domain.Transaction) error {
			return tx.DeleteProtocol("proto")
		}, domain.ErrProtocolInUse},
		{"delete missing run", func(tx domain.Transaction) error {
			return tx.DeleteRun("missing")
		}, domain.ErrNotFound},
		{"cyclic protocol", func(tx domain.Transaction) error {
			_, err := tx.CreateProtocol(domain.ProtocolGraph{ID: "cyc", Name: "cyc", Actions: []domain.ProtocolAction{
				{ID: "a", Predecessors: []string{"b"}}, {ID: "b", Predecessors: []string{"a"}},
			}})
			return err
		}, domain.ErrCycle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.RunInTransaction(ctx, tc.fn)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateArtifactGuards(t *testing.T) {
	store := seedRun(t)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.UpdateArtifact("missing", func(*domain.Artifact) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := tx.UpdateArtifact("out", func(a *domain.Artifact) error { a.Kind = domain.KindMaterial; return nil }); err == nil {
			t.Fatalf("expected kind change to fail")
		}
		if _, err := tx.UpdateArtifact("out", func(*domain.Artifact) error { return fmt.Errorf("boom") }); err == nil {
			t.Fatalf("expected mutator error")
		}
		updated, err := tx.UpdateArtifact("out", func(a *domain.Artifact) error {
			a.ID = "renamed"
			a.Name = "Result"
			return nil
		})
		if err != nil {
			return err
		}
		if updated.ID != "out" || updated.Name != "Result" {
			t.Fatalf("unexpected update result %+v", updated)
		}
		if err := tx.DeleteArtifact("out"); err == nil {
			t.Fatalf("expected referenced artifact delete to fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestMigrateSnapshotDropsDanglingReferences(t *testing.T) {
	snapshot := Snapshot{
		Artifacts: map[string]Artifact{"a": {ID: "a", Kind: domain.KindData}},
		Runs:      map[string]RunInstance{"r": {ID: "r", ApplicationIDs: []string{"p", "gone"}}},
		Applications: map[string]ProtocolApplication{
			"p":      {ID: "p", RunID: "r"},
			"orphan": {ID: "orphan", RunID: "missing"},
		},
		Edges: []Edge{
			{ArtifactID: "a", ApplicationID: "p", Direction: domain.EdgeOutput},
			{ArtifactID: "missing", ApplicationID: "p", Direction: domain.EdgeInput},
			{ArtifactID: "a", ApplicationID: "orphan", Direction: domain.EdgeInput},
		},
	}
	migrated := migrateSnapshot(snapshot)
	if len(migrated.Edges) != 1 || len(migrated.Applications) != 1 {
		t.Fatalf("expected dangling data removed, got %+v", migrated)
	}
	run := migrated.Runs["r"]
	if run.Status != domain.RunPersisted || len(run.ApplicationIDs) != 1 {
		t.Fatalf("unexpected migrated run %+v", run)
	}
	if migrated.Types == nil || migrated.Protocols == nil {
		t.Fatalf("expected empty maps initialised")
	}
}

func TestSetNowFunc(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateArtifact(domain.Artifact{ID: "a", Kind: domain.KindData})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	a, _ := store.GetArtifact("a")
	if !a.CreatedAt.Equal(fixed) {
		t.Fatalf("expected fixed timestamp, got %v", a.CreatedAt)
	}
	store.SetNowFunc(nil)
	if store.NowFunc()().IsZero() {
		t.Fatalf("expected wall clock restored")
	}
}

func TestCommitHookFailureAbortsTransaction(t *testing.T) {
	store := NewStore(nil)
	var seen Snapshot
	store.SetCommitHook(func(_ context.Context, next Snapshot) error {
		seen = next
		return fmt.Errorf("disk full")
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateArtifact(domain.Artifact{ID: "a", Kind: domain.KindData})
		return err
	})
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("expected hook error, got %v", err)
	}
	if _, ok := seen.Artifacts["a"]; !ok {
		t.Fatalf("hook should receive the pending state")
	}
	if _, ok := store.GetArtifact("a"); ok {
		t.Fatalf("hook failure must not commit")
	}

	store.SetCommitHook(nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateArtifact(domain.Artifact{ID: "a", Kind: domain.KindData})
		return err
	}); err != nil {
		t.Fatalf("retry after hook removal: %v", err)
	}
}
