package core

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"lineagecore/pkg/domain"
)

// AncestorIndex materializes scalar lookups keyed by (root, direction, type
// key). Concurrent misses for one key share a single closure walk. Writes that
// change lineage invalidate the affected roots; an epoch counter keeps a walk
// that started before an invalidation from caching its stale answer.
type AncestorIndex struct {
	engine *ClosureEngine
	cache  *expirable.LRU[string, Lookup]
	group  singleflight.Group
	epoch  atomic.Uint64
}

// NewAncestorIndex builds an index holding up to size lookups for ttl.
func NewAncestorIndex(engine *ClosureEngine, size int, ttl time.Duration) *AncestorIndex {
	return &AncestorIndex{
		engine: engine,
		cache:  expirable.NewLRU[string, Lookup](size, nil, ttl),
	}
}

func indexKey(root string, dir Direction, target TypeRef) string {
	return root + "|" + string(dir) + "|" + target.Key()
}

// Epoch identifies the current invalidation generation. Callers that take a
// store view after reading it may pass it to LookupSince.
func (x *AncestorIndex) Epoch() uint64 {
	return x.epoch.Load()
}

// Lookup serves a scalar lookup from the index, computing it against view on a miss.
func (x *AncestorIndex) Lookup(ctx context.Context, view LineageReader, root string, target TypeRef, dir Direction) (Lookup, error) {
	return x.LookupSince(ctx, view, x.Epoch(), root, target, dir)
}

// LookupSince is Lookup for a view taken after epoch was read. A computed
// answer is only cached when no invalidation happened in between.
//
// Concurrent misses share one walk per epoch, so a caller never receives an
// answer computed on a view older than its own. The shared walk is detached
// from any single caller's cancellation; each caller still returns as soon as
// its own ctx is done.
func (x *AncestorIndex) LookupSince(ctx context.Context, view LineageReader, epoch uint64, root string, target TypeRef, dir Direction) (Lookup, error) {
	key := indexKey(root, dir, target)
	if l, ok := x.cache.Get(key); ok {
		return l, nil
	}
	walkCtx := context.WithoutCancel(ctx)
	ch := x.group.DoChan(key+"#"+strconv.FormatUint(epoch, 10), func() (any, error) {
		l, err := x.engine.ScalarLookup(walkCtx, view, root, target, dir)
		if err != nil {
			return Lookup{}, err
		}
		if x.epoch.Load() == epoch {
			x.cache.Add(key, l)
		}
		return l, nil
	})
	select {
	case <-ctx.Done():
		return Lookup{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Lookup{}, r.Err
		}
		return r.Val.(Lookup), nil
	}
}

// IndexEntry is one cached lookup.
type IndexEntry struct {
	Direction Direction `json:"direction"`
	Target    TypeRef   `json:"target"`
	Lookup    Lookup    `json:"lookup"`
}

func parseIndexKey(key string) (root string, dir Direction, target TypeRef, ok bool) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return "", "", TypeRef{}, false
	}
	target, ok = domain.ParseTypeKey(parts[2])
	return parts[0], Direction(parts[1]), target, ok
}

// Entries lists the cached lookups rooted at root, ordered by direction and
// type key.
func (x *AncestorIndex) Entries(root string) []IndexEntry {
	var out []IndexEntry
	for _, key := range x.cache.Keys() {
		r, dir, target, ok := parseIndexKey(key)
		if !ok || r != root {
			continue
		}
		if l, hit := x.cache.Peek(key); hit {
			out = append(out, IndexEntry{Direction: dir, Target: target, Lookup: l})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Direction != out[j].Direction {
			return out[i].Direction < out[j].Direction
		}
		return out[i].Target.Key() < out[j].Target.Key()
	})
	return out
}

// StaleRoots names, per direction, the roots whose lookups may change when
// lineage through a set of artifacts changes.
type StaleRoots map[Direction]map[string]struct{}

// Affected computes the stale roots for artifactIDs against view: ancestor
// lookups rooted at them or their descendants, and descendant lookups rooted
// at them or their ancestors. Run it on the view that still holds the
// lineage in question.
func (x *AncestorIndex) Affected(ctx context.Context, view LineageReader, artifactIDs []string) (StaleRoots, error) {
	if len(artifactIDs) == 0 {
		return StaleRoots{}, nil
	}
	down, err := x.engine.Reach(ctx, view, artifactIDs, Descendants)
	if err != nil {
		return nil, err
	}
	up, err := x.engine.Reach(ctx, view, artifactIDs, Ancestors)
	if err != nil {
		return nil, err
	}
	return StaleRoots{Ancestors: down, Descendants: up}, nil
}

// Drop starts a new epoch and removes entries for roots. A nil roots purges
// the whole index.
func (x *AncestorIndex) Drop(roots StaleRoots) {
	x.epoch.Add(1)
	if roots == nil {
		x.cache.Purge()
		return
	}
	for _, key := range x.cache.Keys() {
		root, dir, _, ok := parseIndexKey(key)
		if !ok {
			x.cache.Remove(key)
			continue
		}
		if _, hit := roots[dir][root]; hit {
			x.cache.Remove(key)
		}
	}
}

// Invalidate is Affected followed by Drop. When the affected set cannot be
// computed the whole index is purged.
func (x *AncestorIndex) Invalidate(ctx context.Context, view LineageReader, artifactIDs []string) error {
	roots, err := x.Affected(ctx, view, artifactIDs)
	x.Drop(roots)
	return err
}

// Rebuild discards the index and recomputes ancestor lookups of every
// artifact for each target type.
func (x *AncestorIndex) Rebuild(ctx context.Context, view LineageReader, targets []TypeRef) error {
	x.epoch.Add(1)
	x.cache.Purge()
	epoch := x.epoch.Load()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, artifact := range view.ListArtifacts() {
		root := artifact.ID
		g.Go(func() error {
			for _, target := range targets {
				l, err := x.engine.ScalarLookup(gctx, view, root, target, Ancestors)
				if err != nil {
					return err
				}
				if x.epoch.Load() == epoch {
					x.cache.Add(indexKey(root, Ancestors, target), l)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		x.cache.Purge()
		return err
	}
	return nil
}

// Len reports the number of cached lookups.
func (x *AncestorIndex) Len() int {
	return x.cache.Len()
}
