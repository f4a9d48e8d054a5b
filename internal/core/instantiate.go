package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"lineagecore/pkg/domain"
)

const reasonNoInputRole = "no input role"

// SuppliedInput hands an existing artifact to a run under a role. ActionID
// targets one action; when empty, every leaf action with the role claims it.
type SuppliedInput struct {
	ArtifactID string
	Role       string
	ActionID   string
}

// ArtifactDraft describes an artifact an action produces. Role may be left
// empty when the action declares a single output role; Kind and TypeID
// default to the role's spec.
type ArtifactDraft struct {
	ID     string
	Name   string
	Role   string
	Kind   ArtifactKind
	TypeID *string
}

// RunRequest asks for one run of a protocol.
type RunRequest struct {
	ID         string
	Name       string
	ProtocolID string
	ScopeID    string
	User       string
	Inputs     []SuppliedInput
	// Outputs holds the drafts each action produces, keyed by action id.
	Outputs map[string][]ArtifactDraft
}

// RunOutcome is what InstantiateRun wrote.
type RunOutcome struct {
	Run          RunInstance
	Applications []ProtocolApplication
	Created      []Artifact
	Edges        []Edge
}

// runPlan is a fully validated run, ready to be written.
type runPlan struct {
	run          RunInstance
	applications []ProtocolApplication
	created      []Artifact
	edges        []Edge
}

type planner struct {
	matcher   *CompatibilityMatcher
	authority string
	view      LineageReader
	req       RunRequest
}

// plan validates req against the protocol in view without writing anything.
// withRunID mints a run id when the caller left it empty, so an aborted
// attempt can still be correlated with its audit entry.
func (r RunRequest) withRunID() RunRequest {
	if r.ID == "" {
		r.ID = uuid.Must(uuid.NewV7()).String()
	}
	return r
}

func (p *planner) plan(ctx context.Context) (runPlan, error) {
	req := p.req
	protocol, ok := p.view.FindProtocol(req.ProtocolID)
	if !ok {
		return runPlan{}, &domain.NotFoundError{Entity: domain.EntityProtocol, ID: req.ProtocolID}
	}
	order, err := protocol.TopologicalOrder()
	if err != nil {
		return runPlan{}, err
	}

	supplied, err := p.loadSupplied(&protocol)
	if err != nil {
		return runPlan{}, err
	}
	for actionID := range req.Outputs {
		if _, ok := protocol.Action(actionID); !ok {
			return runPlan{}, &domain.NotFoundError{Entity: domain.EntityAction, ID: actionID}
		}
	}

	out := runPlan{run: RunInstance{
		ID:         req.ID,
		Name:       req.Name,
		ProtocolID: protocol.ID,
		ScopeID:    req.ScopeID,
		CreatedBy:  req.User,
		Status:     domain.RunPending,
	}}

	claimed := make([]bool, len(supplied))
	produced := make(map[string][]Artifact, len(order))
	producedRole := make(map[string]string)
	for i, action := range order {
		if err := ctx.Err(); err != nil {
			return runPlan{}, err
		}
		app := ProtocolApplication{
			ID:       uuid.Must(uuid.NewV7()).String(),
			RunID:    req.ID,
			ActionID: action.ID,
			Name:     action.Name,
			Sequence: i + 1,
		}
		out.applications = append(out.applications, app)

		for _, spec := range action.Inputs() {
			var candidates []Artifact
			for j, in := range supplied {
				if !in.targets(action, spec.Role) {
					continue
				}
				claimed[j] = true
				candidates = append(candidates, in.artifact)
			}
			for _, pred := range action.Predecessors {
				for _, a := range produced[pred] {
					if producedRole[a.ID] == spec.Role {
						candidates = append(candidates, a)
					}
				}
			}
			candidates = uniqueArtifacts(candidates)
			if err := p.check(ctx, action, spec, candidates); err != nil {
				return runPlan{}, err
			}
			for _, a := range candidates {
				out.edges = append(out.edges, Edge{ArtifactID: a.ID, ApplicationID: app.ID, Role: spec.Role, Direction: domain.EdgeInput})
			}
		}

		drafts, err := p.outputs(ctx, action, req.Outputs[action.ID])
		if err != nil {
			return runPlan{}, err
		}
		for _, d := range drafts {
			out.created = append(out.created, d.artifact)
			produced[action.ID] = append(produced[action.ID], d.artifact)
			producedRole[d.artifact.ID] = d.role
			out.edges = append(out.edges, Edge{ArtifactID: d.artifact.ID, ApplicationID: app.ID, Role: d.role, Direction: domain.EdgeOutput})
		}
	}

	for j, in := range supplied {
		if !claimed[j] {
			return runPlan{}, &domain.IncompatibleInputError{ActionID: in.input.ActionID, Role: in.input.Role, ArtifactID: in.input.ArtifactID, Reason: reasonNoInputRole}
		}
	}
	if err := out.run.Advance(domain.RunValidated); err != nil {
		return runPlan{}, err
	}
	return out, nil
}

type suppliedArtifact struct {
	input    SuppliedInput
	artifact Artifact
}

// targets reports whether the supplied input fills role on action. Untargeted
// inputs only go to leaf actions.
func (in suppliedArtifact) targets(action ProtocolAction, role string) bool {
	if in.input.Role != role {
		return false
	}
	if in.input.ActionID == "" {
		return action.Leaf()
	}
	return in.input.ActionID == action.ID
}

func (p *planner) loadSupplied(protocol *ProtocolGraph) ([]suppliedArtifact, error) {
	out := make([]suppliedArtifact, 0, len(p.req.Inputs))
	for _, in := range p.req.Inputs {
		if in.ActionID != "" {
			if _, ok := protocol.Action(in.ActionID); !ok {
				return nil, &domain.NotFoundError{Entity: domain.EntityAction, ID: in.ActionID}
			}
		}
		a, ok := p.view.FindArtifact(in.ArtifactID)
		if !ok {
			return nil, &domain.NotFoundError{Entity: domain.EntityArtifact, ID: in.ArtifactID}
		}
		out = append(out, suppliedArtifact{input: in, artifact: a})
	}
	return out, nil
}

// check matches every candidate against spec, then checks the count.
func (p *planner) check(ctx context.Context, action ProtocolAction, spec ProtocolInputSpec, candidates []Artifact) error {
	for _, a := range candidates {
		res, err := p.matcher.Match(ctx, p.view, MatchRequest{Spec: spec, Artifact: a, User: p.req.User, Scope: p.req.ScopeID})
		if err != nil {
			return err
		}
		if !res.OK {
			return &domain.IncompatibleInputError{ActionID: action.ID, Role: spec.Role, ArtifactID: a.ID, Reason: res.Reason}
		}
	}
	if !spec.Accepts(len(candidates)) {
		return &domain.CardinalityError{ActionID: action.ID, Role: spec.Role, Count: len(candidates), MinOccurs: spec.MinOccurs, MaxOccurs: spec.MaxOccurs}
	}
	return nil
}

type plannedOutput struct {
	role     string
	artifact Artifact
}

// outputs turns drafts into artifacts and validates them per output role.
func (p *planner) outputs(ctx context.Context, action ProtocolAction, drafts []ArtifactDraft) ([]plannedOutput, error) {
	specs := action.Outputs()
	byRole := make(map[string][]Artifact, len(specs))
	var out []plannedOutput
	for _, d := range drafts {
		role := d.Role
		if role == "" && len(specs) == 1 {
			role = specs[0].Role
		}
		spec, ok := findSpec(specs, role)
		if !ok {
			return nil, &domain.IncompatibleInputError{ActionID: action.ID, Role: role, ArtifactID: d.ID, Reason: "no output role"}
		}
		a := Artifact{
			ID:        d.ID,
			Name:      d.Name,
			Kind:      d.Kind,
			TypeID:    d.TypeID,
			ScopeID:   p.req.ScopeID,
			CreatedBy: p.req.User,
		}
		if a.Kind == "" {
			a.Kind = spec.Kind
		}
		if !a.Typed() && !spec.AnyType() {
			a.TypeID = domain.StringPtr(*spec.TypeID)
		}
		if a.ID == "" {
			a.ID = MintLSID(p.authority, a.Kind)
		}
		if _, exists := p.view.FindArtifact(a.ID); exists {
			return nil, &domain.DuplicateError{Entity: domain.EntityArtifact, ID: a.ID}
		}
		byRole[role] = append(byRole[role], a)
		out = append(out, plannedOutput{role: role, artifact: a})
	}
	for _, spec := range specs {
		if err := p.check(ctx, action, spec, byRole[spec.Role]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func findSpec(specs []ProtocolInputSpec, role string) (ProtocolInputSpec, bool) {
	for _, s := range specs {
		if s.Role == role {
			return s, true
		}
	}
	return ProtocolInputSpec{}, false
}

func uniqueArtifacts(in []Artifact) []Artifact {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, a := range in {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// write persists a validated plan inside tx and moves the run to persisted.
func (pl runPlan) write(tx Transaction) (RunOutcome, error) {
	run, err := tx.CreateRun(pl.run)
	if err != nil {
		return RunOutcome{}, err
	}
	outcome := RunOutcome{}
	for _, a := range pl.created {
		created, err := tx.CreateArtifact(a)
		if err != nil {
			return RunOutcome{}, fmt.Errorf("run %s: %w", run.ID, err)
		}
		outcome.Created = append(outcome.Created, created)
	}
	for _, app := range pl.applications {
		created, err := tx.CreateApplication(app)
		if err != nil {
			return RunOutcome{}, fmt.Errorf("run %s: %w", run.ID, err)
		}
		outcome.Applications = append(outcome.Applications, created)
	}
	for _, e := range pl.edges {
		created, err := tx.AddEdge(e)
		if err != nil {
			return RunOutcome{}, fmt.Errorf("run %s: %w", run.ID, err)
		}
		outcome.Edges = append(outcome.Edges, created)
	}
	run, err = tx.UpdateRun(run.ID, func(r *RunInstance) error {
		return r.Advance(domain.RunPersisted)
	})
	if err != nil {
		return RunOutcome{}, err
	}
	outcome.Run = run
	sort.Slice(outcome.Edges, func(i, j int) bool { return outcome.Edges[i].Key() < outcome.Edges[j].Key() })
	return outcome, nil
}

// touched lists every artifact the plan links, inputs and outputs alike.
func (pl runPlan) touched() []string {
	seen := make(map[string]struct{}, len(pl.edges))
	var out []string
	for _, e := range pl.edges {
		if _, dup := seen[e.ArtifactID]; dup {
			continue
		}
		seen[e.ArtifactID] = struct{}{}
		out = append(out, e.ArtifactID)
	}
	sort.Strings(out)
	return out
}
