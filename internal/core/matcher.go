package core

import "context"

// Reasons reported by the matcher for kind mismatches.
const reasonWrongKind = "wrong artifact kind"

// MatchRequest pairs a candidate artifact with the spec it should fill.
type MatchRequest struct {
	Spec     ProtocolInputSpec
	Artifact Artifact
	User     string
	Scope    string
}

// MatchResult is the matcher's decision. Reason explains a rejection.
type MatchResult struct {
	OK     bool
	Reason string
}

// CompatibilityMatcher decides whether an artifact can fill an input spec:
// kind first, then type, then the spec's criteria predicate.
type CompatibilityMatcher struct {
	types    *TypeRegistry
	criteria *CriteriaRegistry
}

// NewCompatibilityMatcher wires a matcher to its registries.
func NewCompatibilityMatcher(types *TypeRegistry, criteria *CriteriaRegistry) *CompatibilityMatcher {
	return &CompatibilityMatcher{types: types, criteria: criteria}
}

// Match evaluates req against view. A failed match is a result, not an
// error; errors mean a referenced type or criteria is missing or a predicate
// failed to run.
func (m *CompatibilityMatcher) Match(ctx context.Context, view LineageReader, req MatchRequest) (MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return MatchResult{}, err
	}
	spec := req.Spec
	if req.Artifact.Kind != spec.Kind {
		return MatchResult{Reason: reasonWrongKind}, nil
	}
	if !spec.AnyType() {
		want, err := m.types.Resolve(view, *spec.TypeID)
		if err != nil {
			return MatchResult{}, err
		}
		if !req.Artifact.Typed() || *req.Artifact.TypeID != want.ID {
			return MatchResult{Reason: "expected " + want.Name}, nil
		}
	}
	if spec.CriteriaName != "" {
		criteria, err := m.criteria.Resolve(spec.CriteriaName)
		if err != nil {
			return MatchResult{}, err
		}
		verdict, err := criteria(ctx, CriteriaInput{Spec: spec, User: req.User, Scope: req.Scope, Artifact: req.Artifact})
		if err != nil {
			return MatchResult{}, err
		}
		if !verdict.OK {
			return MatchResult{Reason: verdict.Reason}, nil
		}
	}
	return MatchResult{OK: true}, nil
}
