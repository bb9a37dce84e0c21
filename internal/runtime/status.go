// Package runtime enforces the one-server-per-project singleton and
// publishes its lifecycle to <workdir>/.agentsmithy/status.json, the
// way jaakkos-stringwork's cmd/mcp-server/daemon.go tracks a daemon's
// PID file and socket, generalized here to a single atomically-written
// JSON document instead of a bare PID file plus a live socket probe
// (this server has no long-lived control socket to dial).
package runtime

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/apperr"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

// Singleton owns status.json for one project workdir. Callers must run
// Acquire before starting a listener and Stopped/Crashed at the
// corresponding lifecycle points; all writes go through write, which
// serializes with mu and does tempfile+fsync+rename (spec.md §4.7 step
// 8) so a concurrent reader (GET /health) never observes a half-written
// document.
type Singleton struct {
	path string
	mu   sync.Mutex
}

func statusPath(workdir string) string {
	return filepath.Join(workdir, ".agentsmithy", "status.json")
}

// New prepares a Singleton for workdir, creating .agentsmithy/ if
// missing (spec.md §4.7 step 1).
func New(workdir string) (*Singleton, error) {
	dir := filepath.Join(workdir, ".agentsmithy")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create .agentsmithy dir: %w", err)
	}
	return &Singleton{path: statusPath(workdir)}, nil
}

func isPIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Acquire implements spec.md §4.7 steps 1-4: read any existing status
// document, refuse to start if a previous instance is still alive,
// mark a dead previous instance crashed, probe for a free port starting
// at basePort, and atomically publish "starting" with the chosen port
// and our own PID.
func (s *Singleton) Acquire(host string, basePort int) (port int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return 0, err
	}
	if existing != nil {
		switch existing.ServerStatus {
		case domain.ServerStarting, domain.ServerReady, domain.ServerStopping:
			if isPIDAlive(existing.ServerPID) {
				return 0, apperr.New(apperr.Conflict, fmt.Sprintf("server already running (pid %d, port %d)", existing.ServerPID, existing.Port))
			}
			existing.ServerStatus = domain.ServerCrashed
			if existing.ServerError == "" {
				existing.ServerError = "process no longer alive"
			}
			now := time.Now().UTC()
			existing.ServerUpdated = &now
			if err := s.write(existing); err != nil {
				return 0, err
			}
		}
	}

	port, err = probePort(host, basePort)
	if err != nil {
		return 0, fmt.Errorf("probe port: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.ServerStatusDoc{
		ServerStatus:  domain.ServerStarting,
		ServerPID:     os.Getpid(),
		Port:          port,
		ServerStarted: &now,
		ServerUpdated: &now,
	}
	if err := s.write(doc); err != nil {
		return 0, err
	}
	return port, nil
}

// probePort finds the first free TCP port at or after base by binding
// and immediately releasing it; a genuine race against another process
// grabbing the same port between probe and listen is possible but the
// PID-liveness check in Acquire already covers the case that matters
// (a stale status.json from a previous run of the same project).
func probePort(host string, base int) (int, error) {
	for port := base; port < base+1000; port++ {
		addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port found in [%d, %d)", base, base+1000)
}

// SetConfigStatus records the outcome of config load/validate (spec.md
// §4.7 step 5). A missing API key is not itself an error here; callers
// pass whatever config.Validate returned.
func (s *Singleton) SetConfigStatus(valid bool, errs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("status.json missing: Acquire must run first")
	}
	doc.ConfigValid = valid
	doc.ConfigErrors = errs
	now := time.Now().UTC()
	doc.ServerUpdated = &now
	return s.write(doc)
}

// Ready marks the server listening (spec.md §4.7 step 6).
func (s *Singleton) Ready() error {
	return s.transition(domain.ServerReady, "")
}

// Stopping marks a graceful shutdown in progress (spec.md §4.7 step 7).
func (s *Singleton) Stopping() error {
	return s.transition(domain.ServerStopping, "")
}

// Stopped marks a completed graceful shutdown.
func (s *Singleton) Stopped() error {
	return s.transition(domain.ServerStopped, "")
}

// Crashed records an unrecoverable error before exiting.
func (s *Singleton) Crashed(cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.transition(domain.ServerCrashed, msg)
}

func (s *Singleton) transition(status domain.ServerStatus, serverErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &domain.ServerStatusDoc{ServerPID: os.Getpid()}
	}
	doc.ServerStatus = status
	doc.ServerError = serverErr
	now := time.Now().UTC()
	doc.ServerUpdated = &now
	return s.write(doc)
}

// SetScanStatus records the background RAG indexing pass's progress.
func (s *Singleton) SetScanStatus(status domain.ScanStatus, progress int, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("status.json missing: Acquire must run first")
	}
	now := time.Now().UTC()
	if doc.ScanStatus != status && status == domain.ScanScanning {
		doc.ScanStartedAt = &now
	}
	doc.ScanStatus = status
	doc.ScanProgress = progress
	doc.ScanTaskID = taskID
	doc.ScanPID = os.Getpid()
	doc.ScanUpdatedAt = &now
	return s.write(doc)
}

// Read returns the current status document without holding the lock
// across the caller's use of it (GET /health's read path).
func (s *Singleton) Read() (*domain.ServerStatusDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Singleton) read() (*domain.ServerStatusDoc, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read status.json: %w", err)
	}
	var doc domain.ServerStatusDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse status.json: %w", err)
	}
	return &doc, nil
}

// write does the atomic tempfile+fsync+rename sequence spec.md §4.7
// step 8 requires. Callers must hold mu.
func (s *Singleton) write(doc *domain.ServerStatusDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status.json: %w", err)
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open status.json.tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write status.json.tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync status.json.tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close status.json.tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename status.json: %w", err)
	}
	return nil
}
