package versioning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

func newTestTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	workdir := t.TempDir()
	stateDir := filepath.Join(t.TempDir(), "checkpoints")
	tr, err := NewTracker(workdir, stateDir)
	if err != nil {
		t.Fatal(err)
	}
	return tr, workdir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateWriteApprove(t *testing.T) {
	tr, workdir := newTestTracker(t)
	writeFile(t, workdir, "main.py", "print('hi')\n")

	if _, err := tr.CreateCheckpoint("wrote main.py"); err != nil {
		t.Fatal(err)
	}

	changed, err := tr.GetStagedFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed[0].Path != "main.py" || changed[0].Status != domain.ChangeAdded {
		t.Fatalf("unexpected staged files: %+v", changed)
	}

	res, err := tr.ApproveAll("")
	if err != nil {
		t.Fatal(err)
	}
	if res.CommitsApproved < 1 {
		t.Fatalf("expected at least 1 commit approved, got %d", res.CommitsApproved)
	}
	if res.NewSession != "session_2" {
		t.Fatalf("expected new session session_2, got %s", res.NewSession)
	}

	changed, err = tr.GetStagedFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 {
		t.Fatalf("expected no staged files after approve, got %+v", changed)
	}
}

func TestIdempotentCheckpoint(t *testing.T) {
	tr, workdir := newTestTracker(t)
	writeFile(t, workdir, "a.txt", "hello\n")

	first, err := tr.CreateCheckpoint("first")
	if err != nil {
		t.Fatal(err)
	}
	second, err := tr.CreateCheckpoint("second")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("expected checkpoint with no changes to be a no-op, got %s != %s", first, second)
	}
}

func TestRestoreCheckpoint(t *testing.T) {
	tr, workdir := newTestTracker(t)
	writeFile(t, workdir, "a.txt", "version1\n")
	v1, err := tr.CreateCheckpoint("v1")
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, workdir, "a.txt", "version2\n")
	writeFile(t, workdir, "b.txt", "new file\n")
	if _, err := tr.CreateCheckpoint("v2"); err != nil {
		t.Fatal(err)
	}

	if _, _, err := tr.RestoreCheckpoint(v1); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(filepath.Join(workdir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "version1\n" {
		t.Fatalf("a.txt = %q, want version1", content)
	}
	if _, err := os.Stat(filepath.Join(workdir, "b.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected b.txt to be removed by restore, stat err = %v", err)
	}
}

func TestForceStagedIgnoredFile(t *testing.T) {
	tr, workdir := newTestTracker(t)
	if err := os.MkdirAll(filepath.Join(workdir, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, workdir, "node_modules/shim.js", "module.exports = {}\n")

	if err := tr.StageFile("node_modules/shim.js"); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.CreateCheckpoint("force add"); err != nil {
		t.Fatal(err)
	}

	changed, err := tr.GetStagedFiles()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range changed {
		if c.Path == "node_modules/shim.js" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected force-staged ignored file to appear in staged files: %+v", changed)
	}
}

func TestResetToApproved(t *testing.T) {
	tr, workdir := newTestTracker(t)
	writeFile(t, workdir, "a.txt", "approved\n")
	if _, err := tr.CreateCheckpoint("initial"); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.ApproveAll(""); err != nil {
		t.Fatal(err)
	}

	writeFile(t, workdir, "a.txt", "unapproved edit\n")
	if _, err := tr.CreateCheckpoint("edit"); err != nil {
		t.Fatal(err)
	}

	res, err := tr.ResetToApproved()
	if err != nil {
		t.Fatal(err)
	}
	if res.NewSession != "session_3" {
		t.Fatalf("expected session_3 after reset, got %s", res.NewSession)
	}

	content, err := os.ReadFile(filepath.Join(workdir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "approved\n" {
		t.Fatalf("a.txt = %q, want approved content restored", content)
	}
}

func TestStartAbortEdit(t *testing.T) {
	tr, workdir := newTestTracker(t)
	writeFile(t, workdir, "a.txt", "original\n")

	if err := tr.StartEdit("tok1", []string{"a.txt"}); err != nil {
		t.Fatal(err)
	}
	writeFile(t, workdir, "a.txt", "mutated\n")
	if err := tr.AbortEdit("tok1"); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(filepath.Join(workdir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "original\n" {
		t.Fatalf("a.txt = %q, want original restored after abort_edit", content)
	}
}
