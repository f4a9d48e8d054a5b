// Package archive moves recorded runs in and out of blob storage. An export
// captures a run with everything needed to replay it elsewhere: the protocol
// graph, the applications, their edges and the artifacts and types the edges
// reference.
package archive

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"lineagecore/pkg/domain"
)

// FormatVersion is written into every bundle. Imports reject other versions.
const FormatVersion = 1

const contentType = "application/json"

// Key returns the blob key a run is exported under.
func Key(runID string) string {
	return "runs/" + runID + ".json"
}

// Bundle is the archived form of a run.
type Bundle struct {
	FormatVersion int                          `json:"format_version"`
	ExportedAt    time.Time                    `json:"exported_at"`
	Protocol      domain.ProtocolGraph         `json:"protocol"`
	Run           domain.RunInstance           `json:"run"`
	Applications  []domain.ProtocolApplication `json:"applications"`
	Edges         []domain.Edge                `json:"edges"`
	Artifacts     []domain.Artifact            `json:"artifacts"`
	Types         []domain.ArtifactType        `json:"types,omitempty"`
}

// BuildBundle collects the run and its surroundings from view.
func BuildBundle(view domain.LineageReader, runID string, now time.Time) (Bundle, error) {
	run, ok := view.FindRun(runID)
	if !ok {
		return Bundle{}, &domain.NotFoundError{Entity: domain.EntityRun, ID: runID}
	}
	protocol, ok := view.FindProtocol(run.ProtocolID)
	if !ok {
		return Bundle{}, fmt.Errorf("run %q: %w", runID, &domain.NotFoundError{Entity: domain.EntityProtocol, ID: run.ProtocolID})
	}
	b := Bundle{
		FormatVersion: FormatVersion,
		ExportedAt:    now,
		Protocol:      protocol,
		Run:           run,
		Applications:  view.RunApplications(runID),
	}
	artifacts := make(map[string]domain.Artifact)
	types := make(map[string]domain.ArtifactType)
	for _, app := range b.Applications {
		for _, edge := range view.ApplicationEdges(app.ID) {
			b.Edges = append(b.Edges, edge)
			if _, seen := artifacts[edge.ArtifactID]; seen {
				continue
			}
			artifact, ok := view.FindArtifact(edge.ArtifactID)
			if !ok {
				return Bundle{}, fmt.Errorf("edge %s: %w", edge.Key(), &domain.NotFoundError{Entity: domain.EntityArtifact, ID: edge.ArtifactID})
			}
			artifacts[artifact.ID] = artifact
			if artifact.Typed() {
				if t, ok := view.FindType(*artifact.TypeID); ok {
					types[t.ID] = t
				}
			}
		}
	}
	for _, a := range artifacts {
		b.Artifacts = append(b.Artifacts, a)
	}
	for _, t := range types {
		b.Types = append(b.Types, t)
	}
	sort.Slice(b.Artifacts, func(i, j int) bool { return b.Artifacts[i].ID < b.Artifacts[j].ID })
	sort.Slice(b.Types, func(i, j int) bool { return b.Types[i].ID < b.Types[j].ID })
	sort.Slice(b.Edges, func(i, j int) bool { return b.Edges[i].Key() < b.Edges[j].Key() })
	return b, nil
}

// Encode renders the bundle as indented JSON.
func (b Bundle) Encode() ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// Decode parses and checks a bundle.
func Decode(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("decode run bundle: %w", err)
	}
	if b.FormatVersion != FormatVersion {
		return Bundle{}, fmt.Errorf("unsupported run bundle version %d", b.FormatVersion)
	}
	if strings.TrimSpace(b.Run.ID) == "" {
		return Bundle{}, fmt.Errorf("run bundle has no run id")
	}
	if b.Run.ProtocolID != b.Protocol.ID {
		return Bundle{}, fmt.Errorf("run %q references protocol %q but bundle carries %q", b.Run.ID, b.Run.ProtocolID, b.Protocol.ID)
	}
	return b, nil
}

// metadata is attached to the stored blob so listings identify runs without
// reading bodies.
func (b Bundle) metadata() map[string]string {
	return map[string]string{
		"run_id":         b.Run.ID,
		"protocol_id":    b.Protocol.ID,
		"format_version": fmt.Sprint(b.FormatVersion),
	}
}
