// Package domain defines the provenance entities, value types, and rule
// evaluation primitives used by lineagecore.
package domain

import "time"

// EntityType identifies the type of record stored in the provenance graph.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityArtifact identifies a Data or Material node.
	EntityArtifact EntityType = "artifact"
	// EntityArtifactType identifies a data class or sample type descriptor.
	EntityArtifactType EntityType = "artifact_type"
	// EntityProtocol identifies a protocol graph template.
	EntityProtocol EntityType = "protocol"
	// EntityRun identifies a run instance.
	EntityRun         EntityType = "run"
	EntityAction      EntityType = "protocol_action"
	EntityApplication EntityType = "protocol_application"
	EntityEdge        EntityType = "edge"
	EntityCriteria    EntityType = "criteria"
)

// ArtifactKind is the closed set of artifact variants.
type ArtifactKind string

// Artifact kinds. Every artifact is exactly one of these.
const (
	KindData     ArtifactKind = "Data"
	KindMaterial ArtifactKind = "Material"
)

// Valid reports whether k is one of the two artifact kinds.
func (k ArtifactKind) Valid() bool {
	return k == KindData || k == KindMaterial
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Artifact is a Data or Material node in the provenance graph. The ID is an
// LSID-style identifier, unique across every scope, and never changes once
// assigned.
type Artifact struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Kind      ArtifactKind `json:"kind"`
	TypeID    *string      `json:"type_id,omitempty"`
	ScopeID   string       `json:"scope_id"`
	CreatedBy string       `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
}

// Typed reports whether the artifact carries a data class or sample type.
func (a Artifact) Typed() bool {
	return a.TypeID != nil && *a.TypeID != ""
}

// ArtifactType describes a data class (Kind Data) or a sample type (Kind Material).
type ArtifactType struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Kind      ArtifactKind `json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
}

// TypeRef names a closure target: an artifact kind plus an optional type id.
// An empty TypeID matches every artifact of the kind.
type TypeRef struct {
	Kind   ArtifactKind `json:"kind"`
	TypeID string       `json:"type_id,omitempty"`
}

// Matches reports whether the artifact belongs to the referenced type.
func (r TypeRef) Matches(a Artifact) bool {
	if a.Kind != r.Kind {
		return false
	}
	if r.TypeID == "" {
		return true
	}
	return a.TypeID != nil && *a.TypeID == r.TypeID
}

// Key encodes the reference the way ancestor tables key their rows: "m<id>"
// for sample types and "d<id>" for data classes. A reference without a kind
// matches artifacts of every kind and encodes as "*".
func (r TypeRef) Key() string {
	switch r.Kind {
	case KindMaterial:
		return "m" + r.TypeID
	case KindData:
		return "d" + r.TypeID
	default:
		return "*" + r.TypeID
	}
}

// ParseTypeKey reverses TypeRef.Key.
func ParseTypeKey(key string) (TypeRef, bool) {
	if key == "" {
		return TypeRef{}, false
	}
	var kind ArtifactKind
	switch key[0] {
	case 'm':
		kind = KindMaterial
	case 'd':
		kind = KindData
	case '*':
	default:
		return TypeRef{}, false
	}
	return TypeRef{Kind: kind, TypeID: key[1:]}, true
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}

func strPtr(s string) *string { return &s }

// StringPtr returns a pointer to a copy of s; an empty s yields nil.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return strPtr(s)
}

// IntPtr returns a pointer to a copy of n.
func IntPtr(n int) *int { return &n }
