package domain

import "context"

// LineageReader is the read surface the closure engine, the matcher and the
// rules need from a store. Implementations return copies; callers may keep or
// mutate results freely.
type LineageReader interface {
	FindArtifact(id string) (Artifact, bool)
	FindType(id string) (ArtifactType, bool)
	FindProtocol(id string) (ProtocolGraph, bool)
	FindRun(id string) (RunInstance, bool)
	FindApplication(id string) (ProtocolApplication, bool)
	// ApplicationEdges returns every edge attached to the application.
	ApplicationEdges(applicationID string) []Edge
	// ProducingApplications returns applications with an output edge to the artifact.
	ProducingApplications(artifactID string) []ProtocolApplication
	// ConsumingApplications returns applications with an input edge from the artifact.
	ConsumingApplications(artifactID string) []ProtocolApplication
	RunApplications(runID string) []ProtocolApplication
	RunsForProtocol(protocolID string) []RunInstance
	ListArtifacts() []Artifact
	ListTypes() []ArtifactType
	ListProtocols() []ProtocolGraph
	ListRuns() []RunInstance
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Reads observe the transaction's own writes.
type Transaction interface {
	LineageReader
	Snapshot() TransactionView
	CreateType(ArtifactType) (ArtifactType, error)
	CreateArtifact(Artifact) (Artifact, error)
	UpdateArtifact(id string, mutator func(*Artifact) error) (Artifact, error)
	DeleteArtifact(id string) error
	CreateProtocol(ProtocolGraph) (ProtocolGraph, error)
	UpdateProtocol(id string, mutator func(*ProtocolGraph) error) (ProtocolGraph, error)
	DeleteProtocol(id string) error
	CreateRun(RunInstance) (RunInstance, error)
	UpdateRun(id string, mutator func(*RunInstance) error) (RunInstance, error)
	// DeleteRun removes the run with its applications and their edges. Artifacts are kept.
	DeleteRun(id string) error
	CreateApplication(ProtocolApplication) (ProtocolApplication, error)
	AddEdge(Edge) (Edge, error)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	LineageReader
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetArtifact(id string) (Artifact, bool)
	ListArtifacts() []Artifact
	GetProtocol(id string) (ProtocolGraph, bool)
	ListProtocols() []ProtocolGraph
	GetRun(id string) (RunInstance, bool)
	ListRuns() []RunInstance
}
