package core

import (
	"context"
	"errors"
	"testing"

	"lineagecore/pkg/domain"
)

func TestCreateProtocolVersion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	newArtifact(t, svc, "blood-1", KindMaterial, typeBlood)
	newArtifact(t, svc, "plasma-1", KindMaterial, typePlasma)
	link(t, svc.Store(), "r1", []string{"blood-1"}, []string{"plasma-1"})

	next, _, err := svc.CreateProtocolVersion(ctx, protocolGeneric, "generic-v2", func(p *ProtocolGraph) error {
		p.Actions[0].Specs[0].MinOccurs = 1
		return nil
	})
	if err != nil {
		t.Fatalf("new version: %v", err)
	}
	if next.ID != "generic-v2" || next.Version != 2 || next.Name != "Generic step" {
		t.Fatalf("unexpected version %+v", next)
	}
	if next.Actions[0].Specs[0].MinOccurs != 1 {
		t.Fatalf("expected mutation on the copy")
	}
	base, err := svc.GetProtocol(ctx, protocolGeneric)
	if err != nil {
		t.Fatalf("get base: %v", err)
	}
	if base.Version != 1 || base.Actions[0].Specs[0].MinOccurs != 0 {
		t.Fatalf("base protocol must stay untouched, got %+v", base)
	}

	third, _, err := svc.CreateProtocolVersion(ctx, protocolGeneric, "generic-v3", nil)
	if err != nil {
		t.Fatalf("third version: %v", err)
	}
	if third.Version != 3 {
		t.Fatalf("expected version to follow the latest sibling, got %d", third.Version)
	}

	if _, _, err := svc.CreateProtocolVersion(ctx, "ghost", "ghost-v2", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected missing base, got %v", err)
	}
	if _, _, err := svc.CreateProtocolVersion(ctx, protocolGeneric, "generic-v2", nil); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate id, got %v", err)
	}
	boom := errors.New("boom")
	if _, _, err := svc.CreateProtocolVersion(ctx, protocolGeneric, "generic-v4", func(*ProtocolGraph) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected mutate error, got %v", err)
	}
	if _, ok := svc.Store().GetProtocol("generic-v4"); ok {
		t.Fatalf("failed version must not be stored")
	}
}

func TestDeleteProtocol(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	newArtifact(t, svc, "blood-1", KindMaterial, typeBlood)
	newArtifact(t, svc, "plasma-1", KindMaterial, typePlasma)
	link(t, svc.Store(), "r1", []string{"blood-1"}, []string{"plasma-1"})

	if _, err := svc.DeleteProtocol(ctx, protocolGeneric); !errors.Is(err, domain.ErrProtocolInUse) {
		t.Fatalf("expected protocol in use, got %v", err)
	}
	if _, err := svc.DeleteProtocol(ctx, protocolDerive); err != nil {
		t.Fatalf("delete unused protocol: %v", err)
	}
	if _, err := svc.GetProtocol(ctx, protocolDerive); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted protocol to be gone, got %v", err)
	}
	if _, err := svc.DeleteProtocol(ctx, protocolDerive); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}

	if _, err := svc.DeleteRun(ctx, "r1"); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, err := svc.DeleteProtocol(ctx, protocolGeneric); err != nil {
		t.Fatalf("delete after its run is gone: %v", err)
	}
}

func TestCreateArtifactMintsLSID(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.LSIDAuthority = "lab.example"
	svc := newTestService(t, WithConfig(cfg))

	a, _, err := svc.CreateArtifact(ctx, Artifact{Name: "tube", Kind: KindMaterial, TypeID: domain.StringPtr(typeBlood)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	lsid, err := ParseLSID(a.ID)
	if err != nil {
		t.Fatalf("expected minted LSID, got %q: %v", a.ID, err)
	}
	if lsid.Authority != "lab.example" || lsid.Namespace != string(KindMaterial) {
		t.Fatalf("unexpected LSID %+v", lsid)
	}
	got, err := svc.GetArtifact(ctx, a.ID)
	if err != nil || got.Name != "tube" {
		t.Fatalf("read back: %+v %v", got, err)
	}
	if _, _, err := svc.CreateArtifact(ctx, Artifact{ID: a.ID, Name: "again", Kind: KindMaterial}); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}
