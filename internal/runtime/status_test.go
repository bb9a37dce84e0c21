package runtime

import (
	"os"
	"testing"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

func TestAcquireWritesStartingThenReady(t *testing.T) {
	workdir := t.TempDir()
	s, err := New(workdir)
	if err != nil {
		t.Fatal(err)
	}

	port, err := s.Acquire("127.0.0.1", 18080)
	if err != nil {
		t.Fatal(err)
	}
	if port < 18080 {
		t.Fatalf("expected a probed port >= base, got %d", port)
	}

	doc, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if doc.ServerStatus != domain.ServerStarting {
		t.Fatalf("expected starting, got %s", doc.ServerStatus)
	}
	if doc.ServerPID != os.Getpid() {
		t.Fatalf("expected our own pid, got %d", doc.ServerPID)
	}

	if err := s.SetConfigStatus(true, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Ready(); err != nil {
		t.Fatal(err)
	}

	doc, err = s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if doc.ServerStatus != domain.ServerReady {
		t.Fatalf("expected ready, got %s", doc.ServerStatus)
	}
	if !doc.ConfigValid {
		t.Fatal("expected config_valid to be true")
	}
}

func TestAcquireRefusesWhileAPreviousInstanceIsAlive(t *testing.T) {
	workdir := t.TempDir()
	s, err := New(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Acquire("127.0.0.1", 18090); err != nil {
		t.Fatal(err)
	}

	// A second Singleton over the same workdir sees our still-alive PID
	// in status.json and must refuse to start.
	s2, err := New(workdir)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s2.Acquire("127.0.0.1", 18090)
	if err == nil {
		t.Fatal("expected acquiring a second singleton to fail")
	}
	var appErr *apperr.Error
	if !asApperr(err, &appErr) || appErr.Kind != apperr.Conflict {
		t.Fatalf("expected a conflict error, got %v", err)
	}
}

func TestAcquireRecoversFromADeadPID(t *testing.T) {
	workdir := t.TempDir()
	s, err := New(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Acquire("127.0.0.1", 18100); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a crash: rewrite status.json under a PID that cannot be
	// alive (pid 0 is never a valid process).
	doc.ServerPID = 0
	if err := s.write(doc); err != nil {
		t.Fatal(err)
	}

	s2, err := New(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s2.Acquire("127.0.0.1", 18100); err != nil {
		t.Fatalf("expected acquiring over a dead pid to succeed, got %v", err)
	}
}

func TestStoppingThenStopped(t *testing.T) {
	workdir := t.TempDir()
	s, err := New(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Acquire("127.0.0.1", 18110); err != nil {
		t.Fatal(err)
	}
	if err := s.Ready(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stopping(); err != nil {
		t.Fatal(err)
	}
	doc, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if doc.ServerStatus != domain.ServerStopping {
		t.Fatalf("expected stopping, got %s", doc.ServerStatus)
	}
	if err := s.Stopped(); err != nil {
		t.Fatal(err)
	}
	doc, err = s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if doc.ServerStatus != domain.ServerStopped {
		t.Fatalf("expected stopped, got %s", doc.ServerStatus)
	}
}

func asApperr(err error, target **apperr.Error) bool {
	ae, ok := err.(*apperr.Error)
	if !ok {
		return false
	}
	*target = ae
	return true
}
