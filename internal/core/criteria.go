package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"lineagecore/pkg/domain"
)

// CriteriaInput is what a criteria predicate sees for one candidate.
type CriteriaInput struct {
	Spec     ProtocolInputSpec
	User     string
	Scope    string
	Artifact Artifact
}

// Verdict is a criteria outcome. Reason is set when OK is false and is
// passed to the caller verbatim.
type Verdict struct {
	OK     bool
	Reason string
}

// Accept is the passing verdict.
func Accept() Verdict { return Verdict{OK: true} }

// Reject fails a candidate with a formatted reason.
func Reject(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Criteria is a named predicate applied to input candidates. An error means
// the predicate could not be evaluated, not that the candidate failed.
type Criteria func(ctx context.Context, in CriteriaInput) (Verdict, error)

// CriteriaRegistry maps criteria names to predicates.
type CriteriaRegistry struct {
	mu       sync.RWMutex
	criteria map[string]Criteria
}

// NewCriteriaRegistry returns an empty registry.
func NewCriteriaRegistry() *CriteriaRegistry {
	return &CriteriaRegistry{criteria: make(map[string]Criteria)}
}

// NewDefaultCriteriaRegistry returns a registry holding the built-in criteria.
func NewDefaultCriteriaRegistry() *CriteriaRegistry {
	reg := NewCriteriaRegistry()
	_ = reg.Register("same_scope", sameScopeCriteria)
	_ = reg.Register("name_prefix", namePrefixCriteria)
	_ = reg.Register("created_by", createdByCriteria)
	return reg
}

// Register adds a predicate under name. Names are unique.
func (r *CriteriaRegistry) Register(name string, c Criteria) error {
	if name == "" {
		return fmt.Errorf("criteria name required")
	}
	if c == nil {
		return fmt.Errorf("criteria %q: nil predicate", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.criteria[name]; exists {
		return &domain.DuplicateError{Entity: domain.EntityCriteria, ID: name}
	}
	r.criteria[name] = c
	return nil
}

// Resolve returns the predicate registered under name.
func (r *CriteriaRegistry) Resolve(name string) (Criteria, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.criteria[name]
	if !ok {
		return nil, &domain.NotFoundError{Entity: domain.EntityCriteria, ID: name}
	}
	return c, nil
}

// Names lists registered criteria in lexical order.
func (r *CriteriaRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.criteria))
	for name := range r.criteria {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sameScopeCriteria(_ context.Context, in CriteriaInput) (Verdict, error) {
	if in.Artifact.ScopeID != in.Scope {
		return Reject("artifact belongs to scope %q, run is in %q", in.Artifact.ScopeID, in.Scope), nil
	}
	return Accept(), nil
}

func namePrefixCriteria(_ context.Context, in CriteriaInput) (Verdict, error) {
	prefix, ok := in.Spec.CriteriaConfig["prefix"]
	if !ok || prefix == "" {
		return Verdict{}, fmt.Errorf("criteria name_prefix on role %q: missing prefix config", in.Spec.Role)
	}
	if !strings.HasPrefix(in.Artifact.Name, prefix) {
		return Reject("name must start with %q", prefix), nil
	}
	return Accept(), nil
}

// createdByCriteria compares the creator to the configured user; "$user" or
// no config means the requesting user.
func createdByCriteria(_ context.Context, in CriteriaInput) (Verdict, error) {
	want := in.Spec.CriteriaConfig["user"]
	if want == "" || want == "$user" {
		want = in.User
	}
	if in.Artifact.CreatedBy != want {
		return Reject("created by %q, want %q", in.Artifact.CreatedBy, want), nil
	}
	return Accept(), nil
}
