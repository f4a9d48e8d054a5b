package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"lineagecore/internal/core"
	"lineagecore/pkg/domain"
)

// lineageEnv points storage and blobs at a temp dir so state survives
// between command invocations.
func lineageEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LINEAGECORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("LINEAGECORE_SQLITE_PATH", filepath.Join(dir, "lineage.db"))
	t.Setenv("LINEAGECORE_BLOB_DRIVER", "fs")
	t.Setenv("LINEAGECORE_BLOB_FS_ROOT", filepath.Join(dir, "blobs"))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decode(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
}

func seed(t *testing.T) {
	t.Helper()
	mustExecute(t, "type", "register", "blood", "--name", "Blood")
	mustExecute(t, "type", "register", "plasma", "--name", "Plasma")
	mustExecute(t, "type", "register", "assay", "--name", "Assay", "--kind", "data")
	mustExecute(t, "protocol", "load", filepath.Join("..", "protocoldef", "testdata", "derive.yaml"))
	mustExecute(t, "artifact", "create", "blood-1", "--type", "blood", "--user", "alice")
	mustExecute(t, "run", "instantiate", "derive", "--id", "run-1", "--user", "alice",
		"--input", "Source=blood-1",
		"--output", "split=plasma-1", "--output", "split=plasma-2",
		"--output", "assay=result-1")
}

func TestLineageWorkflow(t *testing.T) {
	lineageEnv(t)
	seed(t)

	var closure struct {
		Matches []string `json:"matches"`
		Count   int      `json:"count"`
	}
	decode(t, mustExecute(t, "closure", "blood-1", "--target", "Material:plasma", "--direction", "descendants"), &closure)
	if closure.Count != 2 || closure.Matches[0] != "plasma-1" {
		t.Fatalf("unexpected closure %+v", closure)
	}

	var lookup struct {
		Kind     string `json:"kind"`
		ID       string `json:"id"`
		Sentinel int    `json:"sentinel"`
	}
	decode(t, mustExecute(t, "lookup", "result-1", "--target", "Material:blood"), &lookup)
	if lookup.Kind != "value" || lookup.ID != "blood-1" {
		t.Fatalf("unexpected lookup %+v", lookup)
	}
	decode(t, mustExecute(t, "lookup", "blood-1", "--target", "Material:plasma", "--direction", "descendants"), &lookup)
	if lookup.Sentinel != -2 {
		t.Fatalf("expected ambiguous sentinel -2, got %+v", lookup)
	}

	var rebuilt struct {
		Entries   int `json:"entries"`
		Artifacts map[string][]struct {
			Target   string `json:"target"`
			ID       string `json:"id"`
			Sentinel int    `json:"sentinel"`
		} `json:"artifacts"`
	}
	decode(t, mustExecute(t, "index", "rebuild", "--show", "result-1"), &rebuilt)
	if rebuilt.Entries == 0 {
		t.Fatalf("expected rebuilt index entries")
	}
	var sawBlood bool
	for _, e := range rebuilt.Artifacts["result-1"] {
		if e.Target == "mblood" {
			sawBlood = e.ID == "blood-1" && e.Sentinel == 1
		}
	}
	if !sawBlood {
		t.Fatalf("expected result-1 to resolve blood-1 in the index, got %+v", rebuilt.Artifacts)
	}

	if _, err := execute(t, "protocol", "delete", "derive"); !errors.Is(err, domain.ErrProtocolInUse) {
		t.Fatalf("expected protocol in use, got %v", err)
	}
}

func TestArchiveCommands(t *testing.T) {
	lineageEnv(t)
	seed(t)

	out := mustExecute(t, "archive", "export", "run-1")
	if !strings.Contains(out, `"succeeded"`) || !strings.Contains(out, "runs/run-1.json") {
		t.Fatalf("unexpected export output %s", out)
	}
	_, err := execute(t, "archive", "export", "run-1")
	if GetExitCode(err) != ExitFailure {
		t.Fatalf("expected re-export to fail with exit 1, got %v", err)
	}
	if out := mustExecute(t, "archive", "list"); !strings.Contains(out, "runs/run-1.json") {
		t.Fatalf("unexpected listing %s", out)
	}

	mustExecute(t, "run", "delete", "run-1")
	var imported struct {
		Run struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"run"`
	}
	decode(t, mustExecute(t, "archive", "import", "runs/run-1.json"), &imported)
	if imported.Run.ID != "run-1" || imported.Run.Status != "persisted" {
		t.Fatalf("unexpected import %+v", imported)
	}
	var lookup struct {
		ID string `json:"id"`
	}
	decode(t, mustExecute(t, "lookup", "plasma-2", "--target", "Material:blood"), &lookup)
	if lookup.ID != "blood-1" {
		t.Fatalf("expected lineage restored, got %+v", lookup)
	}
}

func TestCommandErrors(t *testing.T) {
	lineageEnv(t)
	cases := [][]string{
		{"--log-level", "loud", "index", "rebuild"},
		{"artifact", "create", "--kind", "Sample"},
		{"closure", "x", "--direction", "sideways"},
		{"lookup", "x"},
		{"run", "instantiate", "p", "--input", "nope"},
		{"run", "instantiate", "p", "--output", "=x"},
		{"protocol", "load", "missing.yaml"},
	}
	for _, args := range cases {
		_, err := execute(t, args...)
		if GetExitCode(err) != ExitCommandError {
			t.Fatalf("%v: expected exit %d, got %v", args, ExitCommandError, err)
		}
	}
	t.Setenv("LINEAGECORE_STORAGE_DRIVER", "etcd")
	if _, err := execute(t, "index", "rebuild"); GetExitCode(err) != ExitCommandError {
		t.Fatalf("expected unknown driver to be a command error, got %v", err)
	}
	t.Setenv("LINEAGECORE_STORAGE_DRIVER", "memory")
	if _, err := execute(t, "run", "show", "ghost"); GetExitCode(err) != ExitFailure {
		t.Fatalf("expected missing run to exit 1, got %v", err)
	}
}

func TestParseHelpers(t *testing.T) {
	in, err := parseInput("Aliquot=plasma-1@assay")
	if err != nil || in.Role != "Aliquot" || in.ArtifactID != "plasma-1" || in.ActionID != "assay" {
		t.Fatalf("unexpected input %+v %v", in, err)
	}
	action, draft, err := parseOutput("split=p1:Aliquot")
	if err != nil || action != "split" || draft.ID != "p1" || draft.Role != "Aliquot" {
		t.Fatalf("unexpected output %s %+v %v", action, draft, err)
	}
	ref, err := parseTarget("data:assay")
	if err != nil || ref.Kind != core.KindData || ref.TypeID != "assay" {
		t.Fatalf("unexpected target %+v %v", ref, err)
	}
	if GetExitCode(nil) != ExitSuccess {
		t.Fatalf("nil error should exit 0")
	}
}
