package core

import (
	"context"
	"errors"

	"lineagecore/pkg/domain"
)

// LookupKind tags a scalar lookup result.
type LookupKind int

const (
	// LookupNone means no artifact of the type is reachable.
	LookupNone LookupKind = iota
	// LookupValue carries the single reachable artifact.
	LookupValue
	// LookupAmbiguous carries the count of two or more reachable artifacts.
	LookupAmbiguous
)

func (k LookupKind) String() string {
	switch k {
	case LookupValue:
		return "value"
	case LookupAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Lookup is the scalar form of a closure. It never picks one artifact out
// of several.
type Lookup struct {
	Kind  LookupKind
	ID    string
	Count int
}

func noLookup() Lookup { return Lookup{Kind: LookupNone} }

func valueLookup(id string) Lookup { return Lookup{Kind: LookupValue, ID: id, Count: 1} }

func ambiguousLookup(n int) Lookup { return Lookup{Kind: LookupAmbiguous, Count: n} }

// Value returns the artifact id when exactly one matched.
func (l Lookup) Value() (string, bool) {
	return l.ID, l.Kind == LookupValue
}

// Ambiguous returns the match count when more than one matched.
func (l Lookup) Ambiguous() (int, bool) {
	return l.Count, l.Kind == LookupAmbiguous
}

// Sentinel is the signed-count encoding legacy display adapters expect: the
// match count (0 or 1) when unambiguous, -n for n ambiguous matches.
func (l Lookup) Sentinel() int {
	if l.Kind == LookupAmbiguous {
		return -l.Count
	}
	return l.Count
}

func lookupFromClosure(res ClosureResult) Lookup {
	switch res.Count {
	case 0:
		return noLookup()
	case 1:
		return valueLookup(res.Matches[0])
	default:
		return ambiguousLookup(res.Count)
	}
}

// ScalarLookup collapses the closure of root onto target into a Lookup.
func (e *ClosureEngine) ScalarLookup(ctx context.Context, view LineageReader, root string, target TypeRef, dir Direction) (Lookup, error) {
	res, err := e.Closure(ctx, view, ClosureQuery{Root: root, Target: target, Direction: dir})
	if err != nil {
		return Lookup{}, err
	}
	return lookupFromClosure(res), nil
}

var errNoHops = errors.New("lookup path: at least one hop required")

// scalarFunc resolves one hop of a lookup chain.
type scalarFunc func(ctx context.Context, root string, target TypeRef) (Lookup, error)

// LookupPath follows hops from root, each hop starting at the previous hop's
// value. A hop that finds nothing ends the chain with LookupNone. Ambiguity is
// only reported on single-hop chains; past the first hop there is no way to
// choose a branch, so the chain fails with ErrInsufficientProvenance.
func (e *ClosureEngine) LookupPath(ctx context.Context, view LineageReader, root string, dir Direction, hops ...TypeRef) (Lookup, error) {
	return lookupPath(ctx, root, hops, func(ctx context.Context, root string, target TypeRef) (Lookup, error) {
		return e.ScalarLookup(ctx, view, root, target, dir)
	})
}

func lookupPath(ctx context.Context, root string, hops []TypeRef, scalar scalarFunc) (Lookup, error) {
	if len(hops) == 0 {
		return Lookup{}, errNoHops
	}
	current := root
	var last Lookup
	for _, hop := range hops {
		l, err := scalar(ctx, current, hop)
		if err != nil {
			return Lookup{}, err
		}
		switch l.Kind {
		case LookupNone:
			return l, nil
		case LookupAmbiguous:
			if len(hops) > 1 {
				return Lookup{}, domain.ErrInsufficientProvenance
			}
			return l, nil
		}
		current = l.ID
		last = l
	}
	return last, nil
}
