// Command agentsmithy runs the per-project coding-assistant server
// (spec.md §1): one process per project workdir, owning that project's
// status.json singleton, SQLite store, checkpoint subsystem, and RAG
// sync, serving the HTTP/SSE surface of internal/httpapi.
//
// Grounded on the teacher's cmd/operative/main.go for the overall
// wiring order (logger, store, provider, controller-equivalent,
// server) and on scalytics-KafClaw's internal/cli/root.go for the
// cobra + fatih/color CLI shell around it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/chat"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/config"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/events"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/httpapi"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/logging"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/rag"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/runtime"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/store"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/store/sqlite"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/tools"
	dockersandbox "github.com/AgentSmithyAI/agentsmithy-agent/internal/tools/docker"
)

var (
	flagWorkdir string
	flagIDE     string
)

var logo = "\n" +
	"   ___             _   ____            _ _   _\n" +
	"  / _ \\  __ _  ___ | |_/ ___| _ __ ___ (_) |_| |__  _   _\n" +
	" / /_\\/ / _` |/ _ \\| __\\___ \\| '_ ` _ \\| | __| '_ \\| | | |\n" +
	"/ /_\\\\ | (_| |  __/| |_ ___) | | | | | | | |_| | | | |_| |\n" +
	"\\____/  \\__, |\\___| \\__|____/|_| |_| |_|_|\\__|_| |_|\\__, |\n" +
	"        |___/                                       |___/\n"

var rootCmd = &cobra.Command{
	Use:           "agentsmithy",
	Short:         "AgentSmithy - self-hosted per-project coding assistant server",
	Long:          color.CyanString(logo) + "\nOne server per project: agent loop, checkpoints, RAG sync, and the HTTP/SSE surface an editor talks to.",
	RunE:          runServer,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVar(&flagWorkdir, "workdir", "", "project directory (.agentsmithy/ is created here) (required)")
	rootCmd.Flags().StringVar(&flagIDE, "ide", "", "identifier for the calling IDE/editor, injected into the system prompt")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := err.(exitError); ok {
			os.Exit(code.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
}

// exitError carries spec.md §6's exit-code contract (0 normal, 2
// invalid args, >2 on startup errors) through cobra's error-returning
// RunE without cobra itself ever calling os.Exit.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func runServer(cmd *cobra.Command, args []string) error {
	if flagWorkdir == "" {
		return exitError{2, fmt.Errorf("--workdir is required")}
	}
	workdir, err := filepath.Abs(flagWorkdir)
	if err != nil {
		return exitError{2, fmt.Errorf("resolve --workdir: %w", err)}
	}
	info, err := os.Stat(workdir)
	if err != nil || !info.IsDir() {
		return exitError{2, fmt.Errorf("--workdir %q is not a directory", workdir)}
	}

	cfg, err := config.Load(workdir)
	if err != nil {
		return exitError{3, fmt.Errorf("load config: %w", err)}
	}
	logger := logging.New(cfg.Log, os.Stderr)

	singleton, err := runtime.New(workdir)
	if err != nil {
		return exitError{3, fmt.Errorf("init runtime singleton: %w", err)}
	}
	port, err := singleton.Acquire(cfg.Server.Host, cfg.Server.Port)
	if err != nil {
		return exitError{3, fmt.Errorf("acquire server singleton: %w", err)}
	}

	configErrs := config.Validate(cfg)
	if err := singleton.SetConfigStatus(len(configErrs) == 0, configErrs); err != nil {
		logger.Warn("failed to record config status", "error", err)
	}
	for _, e := range configErrs {
		logger.Warn("config validation issue", "error", e)
	}

	handlers, closeFn, err := wire(cmd.Context(), workdir, cfg, logger, singleton)
	if err != nil {
		_ = singleton.Crashed(err)
		return exitError{3, fmt.Errorf("wire dependencies: %w", err)}
	}
	defer closeFn()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "workdir", workdir)
		serverErrs <- handlers.Start(addr)
	}()

	if err := singleton.Ready(); err != nil {
		logger.Warn("failed to record ready status", "error", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		logger.Info("shutting down", "signal", sig.String())
		_ = singleton.Stopping()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := handlers.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
		_ = singleton.Stopped()
		return nil
	case err := <-serverErrs:
		if err != nil {
			_ = singleton.Crashed(err)
			return exitError{3, fmt.Errorf("server failed: %w", err)}
		}
		_ = singleton.Stopped()
		return nil
	}
}

// wire builds every long-lived dependency the HTTP surface needs and
// returns a cleanup func releasing them, mirroring the teacher's
// main.go sequence (store, provider, background syncer, server) but
// assembled into one Handlers value instead of separate store/
// provider/sandbox arguments threaded through server.New.
func wire(ctx context.Context, workdir string, cfg config.Config, logger *slog.Logger, singleton *runtime.Singleton) (*httpapi.Handlers, func(), error) {
	dialogsDir := filepath.Join(workdir, ".agentsmithy", "dialogs")
	if err := os.MkdirAll(dialogsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create dialogs dir: %w", err)
	}

	dialogIdx, err := store.NewFileDialogIndex(filepath.Join(dialogsDir, "index.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("open dialog index: %w", err)
	}

	db, err := sqlite.New(filepath.Join(dialogsDir, "messages.sqlite"), dialogsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	defaultCommandTimeout := time.Duration(cfg.Sandbox.DefaultCommandTimeoutSeconds) * time.Second

	ragSyncer := rag.NewSyncer(workdir, rag.NewNoopIndex())
	registry := tools.NewStandardRegistry(nil, defaultCommandTimeout)
	if cfg.Sandbox.Image != "" {
		runner, err := dockersandbox.New(cfg.Sandbox.Image)
		if err != nil {
			logger.Warn("sandbox image configured but docker is unavailable, falling back to local run_command", "error", err)
		} else {
			registry.Register(tools.RunCommandTool{Runner: runner, DefaultTimeout: defaultCommandTimeout})
		}
	}
	trackers := chat.NewTrackerCache(workdir, filepath.Join(workdir, ".agentsmithy", "dialogs"))
	broker := events.NewBroker()

	svc := chat.NewService()
	svc.ProjectRoot = workdir
	svc.Env = chat.Environment{OS: goruntime.GOOS, Shell: os.Getenv("SHELL"), IDE: flagIDE}
	svc.Dialogs = dialogIdx
	svc.Messages = db
	svc.Reasoning = db
	svc.ToolResults = db
	svc.FileEdits = db
	svc.RAG = ragSyncer
	svc.Tools = registry
	svc.Trackers = trackers
	svc.Providers = providers
	svc.TokenThreshold = 100_000
	svc.Broker = broker

	cfgMgr, err := config.NewManager(workdir)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init config manager: %w", err)
	}

	handlers := &httpapi.Handlers{
		Chat:     svc,
		Dialogs:  dialogIdx,
		Messages: db,
		Tools:    db,
		Trackers: trackers,
		Config:   cfgMgr,
		Runtime:  singleton,
		Logger:   logger,
		Broker:   broker,
	}

	go func() {
		if err := ragSyncer.FullSync(ctx); err != nil {
			logger.Warn("initial RAG sync failed", "error", err)
		}
	}()

	return handlers, func() { db.Close() }, nil
}
