package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lineagecore/pkg/domain"
)

func TestMatchInput(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	blood := newArtifact(t, svc, "blood-1", KindMaterial, typeBlood)
	assay := newArtifact(t, svc, "assay-1", KindData, typeAssay)

	prefixed := inSpec("Source", KindMaterial, typeBlood, 1, nil)
	prefixed.CriteriaName = "name_prefix"
	prefixed.CriteriaConfig = map[string]string{"prefix": "plasma"}

	tests := []struct {
		name   string
		spec   ProtocolInputSpec
		art    Artifact
		ok     bool
		reason string
	}{
		{"accepts matching type", inSpec("Source", KindMaterial, typeBlood, 1, nil), blood, true, ""},
		{"accepts any type", inSpec("Source", KindMaterial, "", 1, nil), blood, true, ""},
		{"rejects kind", inSpec("Source", KindMaterial, typeBlood, 1, nil), assay, false, reasonWrongKind},
		{"rejects type by name", inSpec("Source", KindMaterial, typePlasma, 1, nil), blood, false, "expected Plasma"},
		{"criteria reason verbatim", prefixed, blood, false, `name must start with "plasma"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := svc.MatchInput(ctx, MatchRequest{Spec: tc.spec, Artifact: tc.art, User: "alice", Scope: "lab"})
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if res.OK != tc.ok || res.Reason != tc.reason {
				t.Fatalf("expected ok=%v reason=%q, got %+v", tc.ok, tc.reason, res)
			}
		})
	}
}

func TestMatchInputMissingReferences(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	blood := newArtifact(t, svc, "blood-1", KindMaterial, typeBlood)

	_, err := svc.MatchInput(ctx, MatchRequest{Spec: inSpec("Source", KindMaterial, "ghost", 1, nil), Artifact: blood})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != domain.EntityArtifactType {
		t.Fatalf("expected missing type, got %v", err)
	}

	spec := inSpec("Source", KindMaterial, "", 1, nil)
	spec.CriteriaName = "unregistered"
	_, err = svc.MatchInput(ctx, MatchRequest{Spec: spec, Artifact: blood})
	if !errors.As(err, &nf) || nf.Entity != domain.EntityCriteria {
		t.Fatalf("expected missing criteria, got %v", err)
	}
}

func TestMatcherKindCheckedBeforeType(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	assay := newArtifact(t, svc, "assay-1", KindData, typeAssay)
	// the type would be unknown, but the kind already rules the candidate out
	res, err := svc.MatchInput(ctx, MatchRequest{Spec: inSpec("Source", KindMaterial, "ghost", 1, nil), Artifact: assay})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.OK || res.Reason != reasonWrongKind {
		t.Fatalf("expected wrong kind, got %+v", res)
	}
}

func TestCriteriaRegistry(t *testing.T) {
	reg := NewDefaultCriteriaRegistry()
	if got := strings.Join(reg.Names(), ","); got != "created_by,name_prefix,same_scope" {
		t.Fatalf("unexpected built-ins %s", got)
	}
	err := reg.Register("same_scope", sameScopeCriteria)
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
	if err := reg.Register("", sameScopeCriteria); err == nil {
		t.Fatalf("expected empty name to fail")
	}
	if err := reg.Register("nil", nil); err == nil {
		t.Fatalf("expected nil predicate to fail")
	}
	if err := reg.Register("always", func(context.Context, CriteriaInput) (Verdict, error) { return Accept(), nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Resolve("always"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestBuiltinCriteria(t *testing.T) {
	ctx := context.Background()
	art := Artifact{ID: "a", Name: "plasma-7", ScopeID: "lab", CreatedBy: "alice"}

	tests := []struct {
		name     string
		criteria Criteria
		config   map[string]string
		user     string
		scope    string
		ok       bool
	}{
		{"same scope", sameScopeCriteria, nil, "alice", "lab", true},
		{"other scope", sameScopeCriteria, nil, "alice", "field", false},
		{"prefix match", namePrefixCriteria, map[string]string{"prefix": "plasma"}, "alice", "lab", true},
		{"prefix miss", namePrefixCriteria, map[string]string{"prefix": "blood"}, "alice", "lab", false},
		{"creator is requester", createdByCriteria, map[string]string{"user": "$user"}, "alice", "lab", true},
		{"creator defaults to requester", createdByCriteria, nil, "bob", "lab", false},
		{"explicit creator", createdByCriteria, map[string]string{"user": "alice"}, "bob", "lab", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := CriteriaInput{Spec: ProtocolInputSpec{Role: "r", CriteriaConfig: tc.config}, User: tc.user, Scope: tc.scope, Artifact: art}
			v, err := tc.criteria(ctx, in)
			if err != nil {
				t.Fatalf("criteria: %v", err)
			}
			if v.OK != tc.ok {
				t.Fatalf("expected ok=%v, got %+v", tc.ok, v)
			}
			if !v.OK && v.Reason == "" {
				t.Fatalf("expected a reason for rejection")
			}
		})
	}

	if _, err := namePrefixCriteria(ctx, CriteriaInput{Artifact: art}); err == nil {
		t.Fatalf("expected missing prefix config to fail")
	}
}

func TestTypeRegistryCachesHits(t *testing.T) {
	svc := newTestService(t)
	reg := NewTypeRegistry(4, 0)
	var view LineageReader
	if err := svc.Store().View(context.Background(), func(v TransactionView) error {
		view = v
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	typ, err := reg.Resolve(view, typeBlood)
	if err != nil || typ.Name != "Blood" {
		t.Fatalf("resolve: %+v %v", typ, err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one cached type, got %d", reg.Len())
	}
	if _, err := reg.Resolve(view, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("misses must not be cached")
	}
	reg.Forget(typeBlood)
	if reg.Len() != 0 {
		t.Fatalf("expected forget to drop the entry")
	}
}
