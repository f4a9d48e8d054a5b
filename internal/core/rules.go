package core

import "lineagecore/pkg/domain"

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// Orphaning an artifact is reported but allowed.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(OrphanedArtifactRule(SeverityWarn))
	engine.Register(ProtocolImmutabilityRule())
	engine.Register(RunCardinalityRule())
	return engine
}

// NewStrictRulesEngine is NewDefaultRulesEngine with orphaning blocked.
func NewStrictRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(OrphanedArtifactRule(SeverityBlock))
	engine.Register(ProtocolImmutabilityRule())
	engine.Register(RunCardinalityRule())
	return engine
}
