package core

import (
	"context"
	"encoding/json"
	"fmt"

	"lineagecore/pkg/domain"
)

// ProtocolImmutabilityRule blocks structural edits to a protocol graph once a
// run references it. Name and description may still change; anything else
// needs a new version.
func ProtocolImmutabilityRule() domain.Rule {
	return protocolImmutabilityRule{}
}

type protocolImmutabilityRule struct{}

func (protocolImmutabilityRule) Name() string { return "protocol_immutability" }

func (protocolImmutabilityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityProtocol || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := change.Before.(domain.ProtocolGraph)
		if !ok {
			continue
		}
		after, ok := change.After.(domain.ProtocolGraph)
		if !ok {
			continue
		}
		runs := view.RunsForProtocol(before.ID)
		if len(runs) == 0 {
			continue
		}
		same, err := sameStructure(before, after)
		if err != nil {
			return domain.Result{}, err
		}
		if same {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "protocol_immutability",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("protocol %s is referenced by %d run(s); create a new version instead", before.ID, len(runs)),
			Entity:   domain.EntityProtocol,
			EntityID: before.ID,
		})
	}
	return res, nil
}

// sameStructure compares version and actions through their JSON form, which
// treats nil and empty collections alike.
func sameStructure(a, b domain.ProtocolGraph) (bool, error) {
	if a.Version != b.Version {
		return false, nil
	}
	left, err := json.Marshal(normalizedActions(a.Actions))
	if err != nil {
		return false, fmt.Errorf("encode protocol %s: %w", a.ID, err)
	}
	right, err := json.Marshal(normalizedActions(b.Actions))
	if err != nil {
		return false, fmt.Errorf("encode protocol %s: %w", b.ID, err)
	}
	return string(left) == string(right), nil
}

func normalizedActions(actions []domain.ProtocolAction) []domain.ProtocolAction {
	out := make([]domain.ProtocolAction, 0, len(actions))
	for _, a := range actions {
		if len(a.Predecessors) == 0 {
			a.Predecessors = nil
		}
		if len(a.Specs) == 0 {
			a.Specs = nil
		}
		out = append(out, a)
	}
	return out
}
