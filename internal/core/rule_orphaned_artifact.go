package core

import (
	"context"
	"fmt"
	"sort"

	"lineagecore/pkg/domain"
)

// OrphanedArtifactRule flags artifacts that lose their last producing
// application while other runs still consume them.
func OrphanedArtifactRule(severity domain.Severity) domain.Rule {
	return orphanedArtifactRule{severity: severity}
}

type orphanedArtifactRule struct {
	severity domain.Severity
}

func (orphanedArtifactRule) Name() string { return "orphaned_artifact" }

func (r orphanedArtifactRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityEdge || change.Action != domain.ActionDelete {
			continue
		}
		edge, ok := change.Before.(domain.Edge)
		if !ok || edge.Direction != domain.EdgeOutput {
			continue
		}
		if _, dup := seen[edge.ArtifactID]; dup {
			continue
		}
		seen[edge.ArtifactID] = struct{}{}
		if len(view.ProducingApplications(edge.ArtifactID)) > 0 {
			continue
		}
		consumers := view.ConsumingApplications(edge.ArtifactID)
		if len(consumers) == 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "orphaned_artifact",
			Severity: r.severity,
			Message:  fmt.Sprintf("artifact %s lost its producing run but is still consumed by %v", edge.ArtifactID, consumingRuns(consumers)),
			Entity:   domain.EntityArtifact,
			EntityID: edge.ArtifactID,
		})
	}
	return res, nil
}

func consumingRuns(apps []domain.ProtocolApplication) []string {
	set := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		set[app.RunID] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
