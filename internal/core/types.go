package core

import "lineagecore/pkg/domain"

type (
	EntityType          = domain.EntityType
	Severity            = domain.Severity
	Artifact            = domain.Artifact
	ArtifactKind        = domain.ArtifactKind
	ArtifactType        = domain.ArtifactType
	TypeRef             = domain.TypeRef
	ProtocolGraph       = domain.ProtocolGraph
	ProtocolAction      = domain.ProtocolAction
	ProtocolInputSpec   = domain.ProtocolInputSpec
	RunInstance         = domain.RunInstance
	RunStatus           = domain.RunStatus
	ProtocolApplication = domain.ProtocolApplication
	Edge                = domain.Edge
	EdgeDirection       = domain.EdgeDirection
	Change              = domain.Change
	Action              = domain.Action
	Violation           = domain.Violation
	Result              = domain.Result
	RuleViolationError  = domain.RuleViolationError
	Rule                = domain.Rule
	RulesEngine         = domain.RulesEngine
	LineageReader       = domain.LineageReader
	Transaction         = domain.Transaction
	TransactionView     = domain.TransactionView
	PersistentStore     = domain.PersistentStore
)

const (
	EntityArtifact     = domain.EntityArtifact
	EntityArtifactType = domain.EntityArtifactType
	EntityProtocol     = domain.EntityProtocol
	EntityRun          = domain.EntityRun
	EntityAction       = domain.EntityAction
	EntityApplication  = domain.EntityApplication
	EntityEdge         = domain.EntityEdge
	EntityCriteria     = domain.EntityCriteria
)

const (
	KindData     = domain.KindData
	KindMaterial = domain.KindMaterial
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
