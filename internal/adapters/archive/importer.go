package archive

import (
	"context"
	"fmt"
	"io"

	"lineagecore/internal/blob"
	"lineagecore/internal/core"
	"lineagecore/pkg/domain"
)

// maxBundleSize bounds how much of a blob an import reads.
const maxBundleSize = 64 << 20

// Replayer applies lineage in one transaction. *core.Service implements it.
type Replayer interface {
	ReplayLineage(ctx context.Context, fn func(tx core.Transaction) (string, []string, error)) (core.Result, error)
}

// Importer replays exported runs into a store.
type Importer struct {
	target Replayer
	blobs  blob.Store
}

// NewImporter returns an importer reading bundles from blobs.
func NewImporter(target Replayer, blobs blob.Store) *Importer {
	return &Importer{target: target, blobs: blobs}
}

// Load reads and decodes the bundle stored under key.
func (i *Importer) Load(ctx context.Context, key string) (Bundle, error) {
	_, rc, err := i.blobs.Get(ctx, key)
	if err != nil {
		return Bundle{}, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, maxBundleSize+1))
	if err != nil {
		return Bundle{}, fmt.Errorf("read %s: %w", key, err)
	}
	if len(data) > maxBundleSize {
		return Bundle{}, fmt.Errorf("bundle %s exceeds %d bytes", key, maxBundleSize)
	}
	return Decode(data)
}

// ImportRun replays the bundle stored under key. Types, artifacts and the
// protocol are created when absent and reused when present; the run itself
// must be new. Rules see the finished run, so a bundle whose edges do not fit
// its protocol is rejected by the run cardinality rule.
func (i *Importer) ImportRun(ctx context.Context, key string) (domain.RunInstance, core.Result, error) {
	bundle, err := i.Load(ctx, key)
	if err != nil {
		return domain.RunInstance{}, core.Result{}, err
	}
	var imported domain.RunInstance
	res, err := i.target.ReplayLineage(ctx, func(tx core.Transaction) (string, []string, error) {
		var err error
		imported, err = replay(tx, bundle)
		return bundle.Run.ID, artifactIDs(bundle), err
	})
	if err != nil {
		return domain.RunInstance{}, res, err
	}
	return imported, res, nil
}

func replay(tx core.Transaction, b Bundle) (domain.RunInstance, error) {
	for _, t := range b.Types {
		if _, ok := tx.FindType(t.ID); ok {
			continue
		}
		if _, err := tx.CreateType(t); err != nil {
			return domain.RunInstance{}, err
		}
	}
	for _, a := range b.Artifacts {
		if _, ok := tx.FindArtifact(a.ID); ok {
			continue
		}
		if _, err := tx.CreateArtifact(a); err != nil {
			return domain.RunInstance{}, err
		}
	}
	if _, ok := tx.FindProtocol(b.Protocol.ID); !ok {
		if _, err := tx.CreateProtocol(b.Protocol); err != nil {
			return domain.RunInstance{}, err
		}
	}
	if _, err := tx.CreateRun(b.Run); err != nil {
		return domain.RunInstance{}, err
	}
	for _, app := range b.Applications {
		if app.RunID != b.Run.ID {
			return domain.RunInstance{}, fmt.Errorf("application %q belongs to run %q, not %q", app.ID, app.RunID, b.Run.ID)
		}
		if _, err := tx.CreateApplication(app); err != nil {
			return domain.RunInstance{}, err
		}
	}
	for _, e := range b.Edges {
		if _, err := tx.AddEdge(e); err != nil {
			return domain.RunInstance{}, err
		}
	}
	run, _ := tx.FindRun(b.Run.ID)
	return run, nil
}

func artifactIDs(b Bundle) []string {
	ids := make([]string, 0, len(b.Artifacts))
	for _, a := range b.Artifacts {
		ids = append(ids, a.ID)
	}
	return ids
}
