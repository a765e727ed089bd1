// Artificer is a conversational agent that forges new tools for itself
// at runtime. When a request needs a capability the agent does not
// have, it writes a small Go program, compiles it, verifies it, and
// registers it as a live tool within the same conversation.
//
// Usage:
//
//	artificer serve           Start the API server and web UI
//	artificer chat            Interactive terminal chat
//	artificer ask <question>  Ask a single question and exit
//	artificer init [dir]      Initialize a working directory with defaults
//	artificer version         Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nbriggs/artificer/internal/agent"
	"github.com/nbriggs/artificer/internal/api"
	"github.com/nbriggs/artificer/internal/buildinfo"
	"github.com/nbriggs/artificer/internal/config"
	"github.com/nbriggs/artificer/internal/conversation"
	"github.com/nbriggs/artificer/internal/events"
	"github.com/nbriggs/artificer/internal/forge"
	"github.com/nbriggs/artificer/internal/intent"
	"github.com/nbriggs/artificer/internal/llm"
	"github.com/nbriggs/artificer/internal/memory"
	"github.com/nbriggs/artificer/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the full lifecycle
// can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Stdin, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which interferes with
// calling run concurrently from tests, and the argument surface here is
// small enough that manual parsing stays clearer than a CLI framework.
func run(ctx context.Context, stdout, stderr io.Writer, stdin io.Reader, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "chat":
		return runChat(ctx, stdout, stdin, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: artificer ask <question>")
		}
		return runAsk(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Artificer - a self-extending conversational agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: artificer [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server and web UI")
	fmt.Fprintln(w, "  chat         Interactive terminal chat")
	fmt.Fprintln(w, "  ask          Ask a single question and exit")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintf(w, "  %s\n", strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// setup loads config and builds the logger and the shared services
// every command variant needs.
func setup(stdout io.Writer, configPath string) (*config.Config, *slog.Logger, error) {
	cfg, cfgPath, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		level, err = config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
	}
	logger := newLogger(stdout, level)

	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	} else {
		logger.Info("no config file found, using defaults")
	}
	return cfg, logger, nil
}

// sessionFactory wires up everything one agent session owns: registry
// with builtins, forge pipeline with its meta-tools, restored stored
// capabilities, intent analyzer, conversation, and the loop itself.
func sessionFactory(cfg *config.Config, logger *slog.Logger, client llm.Client, bus *events.Bus, transcript *memory.Store) (api.SessionFactory, error) {
	store, err := forge.NewStore(cfg.GeneratedDir())
	if err != nil {
		return nil, err
	}

	codegenModel := cfg.LLM.CodegenModel
	if codegenModel == "" {
		codegenModel = cfg.LLM.Model
	}

	return func(sessionID string) *agent.Loop {
		slogger := logger.With("session", sessionID)

		registry := tools.NewRegistry(slogger)
		registry.RegisterBuiltins(cfg.Workspace.Path)

		conv := conversation.NewManager(slogger, registry.All())

		pipeline := forge.NewPipeline(forge.PipelineOptions{
			Logger:        slogger,
			Client:        client,
			CodegenModel:  codegenModel,
			Registry:      registry,
			Conversation:  conv,
			Store:         store,
			Bus:           bus,
			GoBin:         cfg.Forge.GoBin,
			BuildTimeout:  time.Duration(cfg.Forge.BuildTimeoutSec) * time.Second,
			ExecTimeout:   time.Duration(cfg.Forge.ExecTimeoutSec) * time.Second,
			DeniedImports: cfg.Forge.DeniedImports,
		})
		forge.RegisterMetaTools(pipeline, registry)
		pipeline.Restore(context.Background())
		conv.UpdateSystemPrompt(registry.All())

		return agent.NewLoop(agent.Options{
			Logger:         slogger,
			Client:         client,
			Conversation:   conv,
			Registry:       registry,
			Analyzer:       intent.NewRuleAnalyzer(intent.DefaultRules()),
			Bus:            bus,
			Transcript:     transcript,
			ConversationID: sessionID,
			Model:          cfg.LLM.Model,
			CycleBudget:    cfg.Agent.CycleBudget,
			HistoryWindow:  cfg.Agent.HistoryWindow,
		})
	}, nil
}

// runServe starts the API server and web UI and blocks until SIGINT or
// SIGTERM triggers a graceful shutdown.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, logger, err := setup(stdout, configPath)
	if err != nil {
		return err
	}
	logger.Info("starting Artificer", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	transcript, err := memory.Open(cfg.DataDir + "/transcript.db")
	if err != nil {
		return fmt.Errorf("open transcript store: %w", err)
	}
	defer transcript.Close()

	bus := events.New()
	client := llm.NewOpenAIClient(logger, cfg.LLM.BaseURL, cfg.LLM.APIKey)

	newSession, err := sessionFactory(cfg, logger, client, bus, transcript)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Options{
		Address:    cfg.Listen.Address,
		Port:       cfg.Listen.Port,
		Logger:     logger,
		Bus:        bus,
		Transcript: transcript,
		NewSession: newSession,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runAsk boots a single session, processes one question, and prints the
// answer. Useful for smoke tests and scripting without the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath, question string) error {
	loop, cleanup, err := standaloneSession(stdout, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	msg, err := loop.ProcessUserInput(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout, msg.Content)
	return nil
}

// standaloneSession builds one CLI session without the HTTP server.
// Errors and logs go to stderr-style output via the provided writer.
func standaloneSession(stdout io.Writer, configPath string) (*agent.Loop, func(), error) {
	cfg, logger, err := setup(stdout, configPath)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}
	transcript, err := memory.Open(cfg.DataDir + "/transcript.db")
	if err != nil {
		return nil, nil, fmt.Errorf("open transcript store: %w", err)
	}

	client := llm.NewOpenAIClient(logger, cfg.LLM.BaseURL, cfg.LLM.APIKey)
	newSession, err := sessionFactory(cfg, logger, client, nil, transcript)
	if err != nil {
		transcript.Close()
		return nil, nil, err
	}

	loop := newSession("cli-" + uuid.NewString())
	return loop, func() { transcript.Close() }, nil
}
