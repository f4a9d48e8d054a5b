// Package protocoldef reads protocol graphs from YAML definitions.
//
// A definition file holds one or more documents separated by "---":
//
//	id: derive
//	name: Derive plasma
//	actions:
//	  - id: split
//	    inputs:
//	      - {role: Source, kind: Material, type: blood, min: 1, max: 1}
//	    outputs:
//	      - {role: Aliquot, kind: Material, type: plasma, min: 1}
//	  - id: assay
//	    after: [split]
//	    inputs:
//	      - {role: Aliquot, kind: Material, type: plasma, min: 1}
//
// An omitted max leaves the role unbounded.
package protocoldef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lineagecore/pkg/domain"
)

// Definition is the YAML form of a protocol graph.
type Definition struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Version     int         `yaml:"version,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Actions     []ActionDef `yaml:"actions"`
}

// ActionDef is one step of a definition.
type ActionDef struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name,omitempty"`
	Sequence int       `yaml:"sequence,omitempty"`
	After    []string  `yaml:"after,omitempty"`
	Inputs   []RoleDef `yaml:"inputs,omitempty"`
	Outputs  []RoleDef `yaml:"outputs,omitempty"`
}

// RoleDef declares an input or output role.
type RoleDef struct {
	Role     string            `yaml:"role"`
	Kind     string            `yaml:"kind"`
	Type     string            `yaml:"type,omitempty"`
	Min      int               `yaml:"min"`
	Max      *int              `yaml:"max,omitempty"`
	Criteria string            `yaml:"criteria,omitempty"`
	Config   map[string]string `yaml:"config,omitempty"`
}

// Error reports a definition that parsed but does not describe a valid graph.
type Error struct {
	Protocol string
	Field    string
	Err      error
}

func (e *Error) Error() string {
	if e.Protocol == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("protocol %s: %s: %v", e.Protocol, e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// LoadFile reads every protocol defined in path.
func LoadFile(path string) ([]domain.ProtocolGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol definitions: %w", err)
	}
	graphs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return graphs, nil
}

// Parse decodes every document in data. Unknown fields are rejected so typos
// surface instead of silently dropping a role.
func Parse(data []byte) ([]domain.ProtocolGraph, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var graphs []domain.ProtocolGraph
	seen := make(map[string]struct{})
	for {
		var def Definition
		err := decoder.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
		g, err := def.Graph()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[g.ID]; dup {
			return nil, &Error{Protocol: g.ID, Field: "id", Err: &domain.DuplicateError{Entity: domain.EntityProtocol, ID: g.ID}}
		}
		seen[g.ID] = struct{}{}
		graphs = append(graphs, g)
	}
	if len(graphs) == 0 {
		return nil, &Error{Field: "document", Err: errors.New("no protocol definitions")}
	}
	return graphs, nil
}

// Graph converts the definition. Actions may name later actions in after;
// edges are added once every action exists, so cycles are reported as
// domain.CycleError.
func (d Definition) Graph() (domain.ProtocolGraph, error) {
	if strings.TrimSpace(d.ID) == "" {
		return domain.ProtocolGraph{}, &Error{Field: "id", Err: errors.New("required")}
	}
	name := d.Name
	if name == "" {
		name = d.ID
	}
	g := domain.NewProtocolGraph(d.ID, name)
	if d.Version > 0 {
		g.Version = d.Version
	}
	g.Description = d.Description
	if len(d.Actions) == 0 {
		return domain.ProtocolGraph{}, &Error{Protocol: d.ID, Field: "actions", Err: errors.New("at least one action required")}
	}
	for i, a := range d.Actions {
		action, err := a.action(i)
		if err != nil {
			return domain.ProtocolGraph{}, &Error{Protocol: d.ID, Field: fmt.Sprintf("actions[%d]", i), Err: err}
		}
		if err := g.AddAction(action); err != nil {
			return domain.ProtocolGraph{}, &Error{Protocol: d.ID, Field: fmt.Sprintf("actions[%d]", i), Err: err}
		}
	}
	for _, a := range d.Actions {
		for _, p := range a.After {
			if err := g.AddPredecessor(a.ID, p); err != nil {
				return domain.ProtocolGraph{}, &Error{Protocol: d.ID, Field: "actions." + a.ID + ".after", Err: err}
			}
		}
	}
	return *g, nil
}

func (a ActionDef) action(index int) (domain.ProtocolAction, error) {
	action := domain.ProtocolAction{ID: a.ID, Name: a.Name, Sequence: a.Sequence}
	if action.Name == "" {
		action.Name = a.ID
	}
	if action.Sequence == 0 {
		action.Sequence = index + 1
	}
	roles := make(map[string]struct{})
	for _, group := range []struct {
		isInput bool
		defs    []RoleDef
	}{{true, a.Inputs}, {false, a.Outputs}} {
		for _, r := range group.defs {
			spec, err := r.spec(group.isInput)
			if err != nil {
				return domain.ProtocolAction{}, err
			}
			key := fmt.Sprintf("%t|%s", group.isInput, spec.Role)
			if _, dup := roles[key]; dup {
				return domain.ProtocolAction{}, fmt.Errorf("role %q declared twice", spec.Role)
			}
			roles[key] = struct{}{}
			action.Specs = append(action.Specs, spec)
		}
	}
	return action, nil
}

func (r RoleDef) spec(isInput bool) (domain.ProtocolInputSpec, error) {
	if strings.TrimSpace(r.Role) == "" {
		return domain.ProtocolInputSpec{}, errors.New("role name required")
	}
	kind := domain.ArtifactKind(r.Kind)
	if !kind.Valid() {
		return domain.ProtocolInputSpec{}, fmt.Errorf("role %q: unknown kind %q", r.Role, r.Kind)
	}
	if r.Criteria == "" && len(r.Config) > 0 {
		return domain.ProtocolInputSpec{}, fmt.Errorf("role %q: config given without criteria", r.Role)
	}
	return domain.ProtocolInputSpec{
		Role:           r.Role,
		IsInput:        isInput,
		Kind:           kind,
		TypeID:         domain.StringPtr(r.Type),
		CriteriaName:   r.Criteria,
		CriteriaConfig: r.Config,
		MinOccurs:      r.Min,
		MaxOccurs:      r.Max,
	}, nil
}
