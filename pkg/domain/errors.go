package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for errors.Is matching. Each typed error below unwraps to one of these.
var (
	ErrCycle                  = errors.New("protocol graph cycle")
	ErrInvalidCardinality     = errors.New("invalid cardinality range")
	ErrIncompatibleInput      = errors.New("incompatible input")
	ErrCardinality            = errors.New("input count out of range")
	ErrDepthExceeded          = errors.New("lineage depth exceeded")
	ErrNotFound               = errors.New("not found")
	ErrDuplicate              = errors.New("already exists")
	ErrProtocolInUse          = errors.New("protocol referenced by runs")
	ErrInsufficientProvenance = errors.New("unsupported, insufficient provenance information")
)

// CycleError reports a predecessor edge that would close a loop in a protocol graph.
type CycleError struct {
	ProtocolID string
	Path       []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%s in protocol %q", ErrCycle, e.ProtocolID)
	}
	return fmt.Sprintf("%s in protocol %q: %s", ErrCycle, e.ProtocolID, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// InvalidCardinalityError reports a malformed [MinOccurs, MaxOccurs] range.
type InvalidCardinalityError struct {
	Role      string
	MinOccurs int
	MaxOccurs *int
}

func (e *InvalidCardinalityError) Error() string {
	return fmt.Sprintf("%s for role %q: [%d, %s]", ErrInvalidCardinality, e.Role, e.MinOccurs, formatMax(e.MaxOccurs))
}

func (e *InvalidCardinalityError) Unwrap() error { return ErrInvalidCardinality }

// IncompatibleInputError reports a candidate artifact rejected by the matcher.
type IncompatibleInputError struct {
	ActionID   string
	Role       string
	ArtifactID string
	Reason     string
}

func (e *IncompatibleInputError) Error() string {
	return fmt.Sprintf("%s: artifact %s for %s/%s: %s", ErrIncompatibleInput, e.ArtifactID, e.ActionID, e.Role, e.Reason)
}

func (e *IncompatibleInputError) Unwrap() error { return ErrIncompatibleInput }

// CardinalityError reports a matched-artifact count outside the spec's range.
type CardinalityError struct {
	ActionID  string
	Role      string
	Count     int
	MinOccurs int
	MaxOccurs *int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("%s: %s/%s matched %d, want [%d, %s]", ErrCardinality, e.ActionID, e.Role, e.Count, e.MinOccurs, formatMax(e.MaxOccurs))
}

func (e *CardinalityError) Unwrap() error { return ErrCardinality }

// DepthExceededError reports a traversal that still had unexplored lineage at its bound.
type DepthExceededError struct {
	Root     string
	MaxDepth int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("%s: lineage of %s extends beyond %d generations", ErrDepthExceeded, e.Root, e.MaxDepth)
}

func (e *DepthExceededError) Unwrap() error { return ErrDepthExceeded }

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateError is returned when an identifier is already taken.
type DuplicateError struct {
	Entity EntityType
	ID     string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.ID)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

func formatMax(n *int) string {
	if n == nil {
		return "unbounded"
	}
	return fmt.Sprintf("%d", *n)
}
