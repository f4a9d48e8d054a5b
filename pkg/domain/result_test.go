package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock, Message: "orphan"}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if !strings.Contains(err.Error(), "block: orphan") {
		t.Fatalf("expected blocking rule in error string, got %q", err.Error())
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func warnRule(name string, violations ...Violation) Rule {
	return RuleFunc{RuleName: name, Fn: func(context.Context, RuleView, []Change) (Result, error) {
		return Result{Violations: violations}, nil
	}}
}

func TestRulesEngineAttributesViolations(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(warnRule("orphans", Violation{Severity: SeverityWarn, Message: "dangling"}))
	engine.Register(warnRule("cardinality", Violation{Rule: "cardinality/min", Severity: SeverityBlock}))

	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 || res.Violations[0].Rule != "orphans" || res.Violations[1].Rule != "cardinality/min" {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
	if names := engine.Rules(); len(names) != 2 || names[0] != "orphans" || names[1] != "cardinality" {
		t.Fatalf("unexpected rule names %v", names)
	}
}

type emptyView struct{}

func (emptyView) FindArtifact(string) (Artifact, bool)               { return Artifact{}, false }
func (emptyView) FindType(string) (ArtifactType, bool)               { return ArtifactType{}, false }
func (emptyView) FindProtocol(string) (ProtocolGraph, bool)          { return ProtocolGraph{}, false }
func (emptyView) FindRun(string) (RunInstance, bool)                 { return RunInstance{}, false }
func (emptyView) FindApplication(string) (ProtocolApplication, bool) { return ProtocolApplication{}, false }
func (emptyView) ApplicationEdges(string) []Edge                     { return nil }
func (emptyView) ProducingApplications(string) []ProtocolApplication { return nil }
func (emptyView) ConsumingApplications(string) []ProtocolApplication { return nil }
func (emptyView) RunApplications(string) []ProtocolApplication       { return nil }
func (emptyView) RunsForProtocol(string) []RunInstance               { return nil }
func (emptyView) ListArtifacts() []Artifact                          { return nil }
func (emptyView) ListTypes() []ArtifactType                          { return nil }
func (emptyView) ListProtocols() []ProtocolGraph                     { return nil }
func (emptyView) ListRuns() []RunInstance                            { return nil }

func TestRulesEngineEvaluateError(t *testing.T) {
	boom := errors.New("boom")
	engine := NewRulesEngine()
	engine.Register(RuleFunc{RuleName: "broken", Fn: func(context.Context, RuleView, []Change) (Result, error) {
		return Result{}, boom
	}})
	engine.Register(RuleFunc{RuleName: "unreached", Fn: func(context.Context, RuleView, []Change) (Result, error) {
		t.Fatalf("rule after a failing rule must not run")
		return Result{}, nil
	}})
	_, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "rule broken") {
		t.Fatalf("expected wrapped rule error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRulesEngine().Evaluate(ctx, emptyView{}, nil); err != nil {
		t.Fatalf("an empty engine has nothing to cancel: %v", err)
	}
	engine = NewRulesEngine()
	engine.Register(warnRule("any"))
	if _, err := engine.Evaluate(ctx, emptyView{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
