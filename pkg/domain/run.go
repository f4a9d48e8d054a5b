package domain

import (
	"fmt"
	"time"
)

// RunStatus tracks a run instance through instantiation.
type RunStatus string

// Run statuses. Pending -> Validated -> Persisted, or Aborted from any
// non-terminal status.
const (
	RunPending   RunStatus = "pending"
	RunValidated RunStatus = "validated"
	RunPersisted RunStatus = "persisted"
	RunAborted   RunStatus = "aborted"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunPersisted || s == RunAborted
}

// CanTransition reports whether moving from s to next is allowed.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunPending:
		return next == RunValidated || next == RunAborted
	case RunValidated:
		return next == RunPersisted || next == RunAborted
	default:
		return false
	}
}

// RunInstance is one execution of a protocol graph.
type RunInstance struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ProtocolID     string    `json:"protocol_id"`
	ScopeID        string    `json:"scope_id"`
	CreatedBy      string    `json:"created_by"`
	Status         RunStatus `json:"status"`
	ApplicationIDs []string  `json:"application_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

// Advance moves the run to next, rejecting transitions the status machine
// does not allow.
func (r *RunInstance) Advance(next RunStatus) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("run %q: cannot move from %s to %s", r.ID, r.Status, next)
	}
	r.Status = next
	return nil
}

// ProtocolApplication is the instantiation of one protocol action within a run.
type ProtocolApplication struct {
	ID       string `json:"id"`
	RunID    string `json:"run_id"`
	ActionID string `json:"action_id"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
}

// EdgeDirection tells whether an artifact flows into or out of an application.
type EdgeDirection string

// Edge directions.
const (
	EdgeInput  EdgeDirection = "input"
	EdgeOutput EdgeDirection = "output"
)

// Edge links an artifact to a protocol application under a role.
type Edge struct {
	ArtifactID    string        `json:"artifact_id"`
	ApplicationID string        `json:"application_id"`
	Role          string        `json:"role"`
	PropertyID    *string       `json:"property_id,omitempty"`
	Direction     EdgeDirection `json:"direction"`
}

// Key identifies the edge; an artifact appears at most once per application,
// direction and role.
func (e Edge) Key() string {
	return e.ApplicationID + "|" + string(e.Direction) + "|" + e.Role + "|" + e.ArtifactID
}

// Validate checks required fields and the direction value.
func (e Edge) Validate() error {
	if e.ArtifactID == "" || e.ApplicationID == "" {
		return fmt.Errorf("edge requires artifact and application ids")
	}
	if e.Direction != EdgeInput && e.Direction != EdgeOutput {
		return fmt.Errorf("edge %s: unknown direction %q", e.Key(), e.Direction)
	}
	return nil
}

// CloneRun returns a deep copy of r.
func CloneRun(r RunInstance) RunInstance {
	cp := r
	cp.ApplicationIDs = append([]string(nil), r.ApplicationIDs...)
	return cp
}

// CloneEdge returns a deep copy of e.
func CloneEdge(e Edge) Edge {
	cp := e
	if e.PropertyID != nil {
		cp.PropertyID = strPtr(*e.PropertyID)
	}
	return cp
}

// CloneArtifact returns a deep copy of a.
func CloneArtifact(a Artifact) Artifact {
	cp := a
	if a.TypeID != nil {
		cp.TypeID = strPtr(*a.TypeID)
	}
	return cp
}
