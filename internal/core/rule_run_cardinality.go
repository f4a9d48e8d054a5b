package core

import (
	"context"
	"fmt"

	"lineagecore/pkg/domain"
)

// RunCardinalityRule re-checks every persisted run against its protocol: each
// application's edges must fill the declared roles within their cardinality
// ranges and carry artifacts of the declared kind. Runs built by the service
// already satisfy this; the rule guards runs written through imports.
func RunCardinalityRule() domain.Rule {
	return runCardinalityRule{}
}

type runCardinalityRule struct{}

func (runCardinalityRule) Name() string { return "run_cardinality" }

func (runCardinalityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	checked := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityRun || change.After == nil {
			continue
		}
		run, ok := change.After.(domain.RunInstance)
		if !ok || run.Status != domain.RunPersisted {
			continue
		}
		if _, dup := checked[run.ID]; dup {
			continue
		}
		checked[run.ID] = struct{}{}
		// the run may have been deleted later in the same transaction
		current, ok := view.FindRun(run.ID)
		if !ok || current.Status != domain.RunPersisted {
			continue
		}
		checkRun(&res, view, current)
	}
	return res, nil
}

func checkRun(res *domain.Result, view domain.RuleView, run domain.RunInstance) {
	protocol, ok := view.FindProtocol(run.ProtocolID)
	if !ok {
		res.Violations = append(res.Violations, runViolation(run.ID, fmt.Sprintf("run %s references missing protocol %s", run.ID, run.ProtocolID)))
		return
	}
	for _, app := range view.RunApplications(run.ID) {
		action, ok := protocol.Action(app.ActionID)
		if !ok {
			res.Violations = append(res.Violations, runViolation(run.ID, fmt.Sprintf("application %s names unknown action %s", app.ID, app.ActionID)))
			continue
		}
		counts := make(map[domain.EdgeDirection]map[string]int)
		for _, edge := range view.ApplicationEdges(app.ID) {
			spec, ok := specFor(action, edge)
			if !ok {
				res.Violations = append(res.Violations, runViolation(run.ID, fmt.Sprintf("application %s has %s edge with undeclared role %q", app.ID, edge.Direction, edge.Role)))
				continue
			}
			if artifact, ok := view.FindArtifact(edge.ArtifactID); ok && artifact.Kind != spec.Kind {
				res.Violations = append(res.Violations, runViolation(run.ID, fmt.Sprintf("application %s role %q carries %s artifact %s, want %s", app.ID, edge.Role, artifact.Kind, artifact.ID, spec.Kind)))
			}
			if counts[edge.Direction] == nil {
				counts[edge.Direction] = make(map[string]int)
			}
			counts[edge.Direction][edge.Role]++
		}
		for _, spec := range action.Specs {
			n := counts[specDirection(spec)][spec.Role]
			if !spec.Accepts(n) {
				err := &domain.CardinalityError{ActionID: action.ID, Role: spec.Role, Count: n, MinOccurs: spec.MinOccurs, MaxOccurs: spec.MaxOccurs}
				res.Violations = append(res.Violations, runViolation(run.ID, err.Error()))
			}
		}
	}
}

func specFor(action domain.ProtocolAction, edge domain.Edge) (domain.ProtocolInputSpec, bool) {
	for _, spec := range action.Specs {
		if spec.Role == edge.Role && specDirection(spec) == edge.Direction {
			return spec, true
		}
	}
	return domain.ProtocolInputSpec{}, false
}

func specDirection(spec domain.ProtocolInputSpec) domain.EdgeDirection {
	if spec.IsInput {
		return domain.EdgeInput
	}
	return domain.EdgeOutput
}

func runViolation(runID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "run_cardinality",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityRun,
		EntityID: runID,
	}
}
