package memory

import (
	"sort"

	"lineagecore/pkg/domain"
)

// reader answers lineage queries over one memoryState. It backs committed
// views, transaction reads and rule evaluation alike.
type reader struct {
	state *memoryState
}

var _ domain.TransactionView = reader{}

func (r reader) FindArtifact(id string) (Artifact, bool) {
	a, ok := r.state.artifacts[id]
	if !ok {
		return Artifact{}, false
	}
	return domain.CloneArtifact(a), true
}

func (r reader) FindType(id string) (ArtifactType, bool) {
	t, ok := r.state.types[id]
	return t, ok
}

func (r reader) FindProtocol(id string) (ProtocolGraph, bool) {
	p, ok := r.state.protocols[id]
	if !ok {
		return ProtocolGraph{}, false
	}
	return p.Clone(), true
}

func (r reader) FindRun(id string) (RunInstance, bool) {
	run, ok := r.state.runs[id]
	if !ok {
		return RunInstance{}, false
	}
	return domain.CloneRun(run), true
}

func (r reader) FindApplication(id string) (ProtocolApplication, bool) {
	app, ok := r.state.applications[id]
	return app, ok
}

// ApplicationEdges returns the application's edges ordered by direction, role, artifact.
func (r reader) ApplicationEdges(applicationID string) []Edge {
	keys := r.state.byApp[applicationID]
	out := make([]Edge, 0, len(keys))
	for _, key := range keys {
		out = append(out, domain.CloneEdge(r.state.edges[key]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (r reader) ProducingApplications(artifactID string) []ProtocolApplication {
	return r.applicationsFor(artifactID, domain.EdgeOutput)
}

func (r reader) ConsumingApplications(artifactID string) []ProtocolApplication {
	return r.applicationsFor(artifactID, domain.EdgeInput)
}

func (r reader) applicationsFor(artifactID string, dir domain.EdgeDirection) []ProtocolApplication {
	seen := make(map[string]struct{})
	var out []ProtocolApplication
	for _, key := range r.state.byArtifact[artifactID] {
		e := r.state.edges[key]
		if e.Direction != dir {
			continue
		}
		if _, dup := seen[e.ApplicationID]; dup {
			continue
		}
		app, ok := r.state.applications[e.ApplicationID]
		if !ok {
			continue
		}
		seen[e.ApplicationID] = struct{}{}
		out = append(out, app)
	}
	sortApplications(out)
	return out
}

func (r reader) RunApplications(runID string) []ProtocolApplication {
	run, ok := r.state.runs[runID]
	if !ok {
		return nil
	}
	out := make([]ProtocolApplication, 0, len(run.ApplicationIDs))
	for _, id := range run.ApplicationIDs {
		if app, ok := r.state.applications[id]; ok {
			out = append(out, app)
		}
	}
	sortApplications(out)
	return out
}

func (r reader) RunsForProtocol(protocolID string) []RunInstance {
	var out []RunInstance
	for _, run := range r.state.runs {
		if run.ProtocolID == protocolID {
			out = append(out, domain.CloneRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r reader) ListArtifacts() []Artifact {
	out := make([]Artifact, 0, len(r.state.artifacts))
	for _, a := range r.state.artifacts {
		out = append(out, domain.CloneArtifact(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r reader) ListTypes() []ArtifactType {
	out := make([]ArtifactType, 0, len(r.state.types))
	for _, t := range r.state.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r reader) ListProtocols() []ProtocolGraph {
	out := make([]ProtocolGraph, 0, len(r.state.protocols))
	for _, p := range r.state.protocols {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r reader) ListRuns() []RunInstance {
	out := make([]RunInstance, 0, len(r.state.runs))
	for _, run := range r.state.runs {
		out = append(out, domain.CloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortApplications(apps []ProtocolApplication) {
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].RunID != apps[j].RunID {
			return apps[i].RunID < apps[j].RunID
		}
		if apps[i].Sequence != apps[j].Sequence {
			return apps[i].Sequence < apps[j].Sequence
		}
		return apps[i].ID < apps[j].ID
	})
}
