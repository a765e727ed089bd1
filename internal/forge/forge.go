// Package forge synthesizes new capabilities at runtime. The pipeline
// turns free-form requirements into a specification, asks the model for
// Go source, builds it into a standalone binary, probes the binary for
// its manifest, and registers the result as a live capability. Each
// forged capability runs as a child process with its own timeout, so a
// broken one can crash or hang without taking the agent down.
package forge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/nbriggs/artificer/internal/conversation"
	"github.com/nbriggs/artificer/internal/events"
	"github.com/nbriggs/artificer/internal/llm"
	"github.com/nbriggs/artificer/internal/tools"
)

// Result is the outcome of one forge run, returned to the model as the
// meta-capability's JSON result.
type Result struct {
	Success  bool   `json:"success"`
	ToolName string `json:"tool_name"`
	ToolCode string `json:"tool_code,omitempty"`
	Error    string `json:"error,omitempty"`
	IsUpdate bool   `json:"is_update"`
}

// Pipeline orchestrates capability synthesis for one session.
type Pipeline struct {
	logger       *slog.Logger
	client       llm.Client
	codegenModel string
	registry     *tools.Registry
	conv         *conversation.Manager
	store        *Store
	bus          *events.Bus

	goBin         string
	buildTimeout  time.Duration
	execTimeout   time.Duration
	deniedImports []string

	// build and probe are injectable so the pipeline's orchestration
	// can be tested without a Go toolchain on the test host.
	build func(ctx context.Context, srcDir, binPath string) error
	probe func(ctx context.Context, binPath string) (*Manifest, error)
}

// PipelineOptions configures a Pipeline. Zero timeouts take defaults;
// a nil DeniedImports takes the default deny list.
type PipelineOptions struct {
	Logger        *slog.Logger
	Client        llm.Client
	CodegenModel  string
	Registry      *tools.Registry
	Conversation  *conversation.Manager
	Store         *Store
	Bus           *events.Bus
	GoBin         string
	BuildTimeout  time.Duration
	ExecTimeout   time.Duration
	DeniedImports []string
}

// DefaultDeniedImports lists packages forged code may never import.
func DefaultDeniedImports() []string {
	return []string{"os/exec", "plugin", "syscall"}
}

// NewPipeline creates a forge pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.GoBin == "" {
		opts.GoBin = "go"
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = 2 * time.Minute
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = 30 * time.Second
	}
	if opts.DeniedImports == nil {
		opts.DeniedImports = DefaultDeniedImports()
	}

	p := &Pipeline{
		logger:        opts.Logger,
		client:        opts.Client,
		codegenModel:  opts.CodegenModel,
		registry:      opts.Registry,
		conv:          opts.Conversation,
		store:         opts.Store,
		bus:           opts.Bus,
		goBin:         opts.GoBin,
		buildTimeout:  opts.BuildTimeout,
		execTimeout:   opts.ExecTimeout,
		deniedImports: opts.DeniedImports,
	}
	p.build = p.goBuild
	p.probe = Probe
	return p
}

// Create forges a brand-new capability from a specification. Failures
// are reported in the Result, never as a Go error: the model reads the
// result and decides what to do next.
func (p *Pipeline) Create(ctx context.Context, spec Specification) *Result {
	spec.ToolName = sanitizeName(spec.ToolName)
	if spec.ToolName == "" {
		spec.ToolName = deriveName(spec.ToolDescription)
	}
	return p.run(ctx, spec, "")
}

// Update re-forges an existing capability. The current source is handed
// to the model so the change is a revision, not a rewrite from nothing.
func (p *Pipeline) Update(ctx context.Context, spec Specification) *Result {
	spec.ToolName = sanitizeName(spec.ToolName)
	if p.registry.Get(spec.ToolName) == nil {
		return &Result{
			ToolName: spec.ToolName,
			IsUpdate: true,
			Error:    fmt.Sprintf("no tool named %q exists to update", spec.ToolName),
		}
	}

	existing, err := p.store.ReadSource(spec.ToolName)
	if err != nil {
		return &Result{
			ToolName: spec.ToolName,
			IsUpdate: true,
			Error:    fmt.Sprintf("cannot read current source: %v", err),
		}
	}
	return p.run(ctx, spec, existing)
}

// run executes the pipeline steps. The registry and system prompt are
// only touched in the final step, so a failure at any earlier step
// leaves the live capability set exactly as it was.
func (p *Pipeline) run(ctx context.Context, spec Specification, existingCode string) *Result {
	name := spec.ToolName
	isUpdate := existingCode != ""
	started := time.Now()

	fail := func(step string, err error) *Result {
		p.logger.Error("forge failed", "tool", name, "step", step, "error", err)
		p.publishComplete(name, false, isUpdate)
		return &Result{ToolName: name, IsUpdate: isUpdate, Error: fmt.Sprintf("%s: %v", step, err)}
	}

	p.logger.Info("forging capability", "tool", name, "update", isUpdate)

	p.step(name, "codegen")
	code, err := p.generateCode(ctx, spec, existingCode)
	if err != nil {
		return fail("codegen", err)
	}

	p.step(name, "screen")
	if err := screenImports(code, p.deniedImports); err != nil {
		return fail("screen", err)
	}

	p.step(name, "write")
	srcDir, err := p.store.WriteSource(name, code)
	if err != nil {
		return fail("write", err)
	}

	p.step(name, "build")
	binPath := p.store.BinaryPath(name)
	if err := p.build(ctx, srcDir, binPath); err != nil {
		return fail("build", err)
	}

	p.step(name, "probe")
	manifest, err := p.probe(ctx, binPath)
	if err != nil {
		return fail("probe", err)
	}
	if manifest.Name != name {
		return fail("verify", fmt.Errorf("binary describes itself as %q, expected %q", manifest.Name, name))
	}

	p.step(name, "register")
	tool := ProcessTool(manifest, binPath, p.execTimeout)
	if isUpdate {
		if err := p.registry.Update(name, tool); err != nil {
			return fail("register", err)
		}
	} else {
		p.registry.Register(tool)
	}

	rec := StoredCapability{
		Manifest:     *manifest,
		Requirements: requirementsText(spec),
		CreatedAt:    started,
		UpdatedAt:    started,
	}
	if isUpdate {
		if prev, err := p.store.ReadManifest(name); err == nil {
			rec.CreatedAt = prev.CreatedAt
		}
	}
	if err := p.store.WriteManifest(name, rec); err != nil {
		p.logger.Warn("manifest write failed", "tool", name, "error", err)
	}

	p.conv.UpdateSystemPrompt(p.registry.All())

	p.logger.Info("capability forged",
		"tool", name,
		"update", isUpdate,
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	p.publishComplete(name, true, isUpdate)
	return &Result{Success: true, ToolName: name, ToolCode: code, IsUpdate: isUpdate}
}

// Restore re-registers every stored capability at startup. Binaries are
// re-probed rather than trusted; a capability whose binary is missing
// is rebuilt from source first. Individual failures are logged and
// skipped so one rotten capability cannot block startup.
func (p *Pipeline) Restore(ctx context.Context) int {
	names, err := p.store.List()
	if err != nil {
		p.logger.Warn("capability scan failed", "error", err)
		return 0
	}

	restored := 0
	for _, name := range names {
		binPath := p.store.BinaryPath(name)
		if _, err := os.Stat(binPath); err != nil {
			p.logger.Info("rebuilding stored capability", "tool", name)
			if err := p.build(ctx, p.store.SourceDir(name), binPath); err != nil {
				p.logger.Warn("capability rebuild failed", "tool", name, "error", err)
				continue
			}
		}

		manifest, err := p.probe(ctx, binPath)
		if err != nil {
			p.logger.Warn("capability probe failed", "tool", name, "error", err)
			continue
		}
		if manifest.Name != name {
			p.logger.Warn("capability manifest mismatch",
				"tool", name, "describes_as", manifest.Name)
			continue
		}

		p.registry.Register(ProcessTool(manifest, binPath, p.execTimeout))
		restored++
	}

	if restored > 0 {
		p.conv.UpdateSystemPrompt(p.registry.All())
	}
	p.logger.Info("capabilities restored", "count", restored, "found", len(names))
	return restored
}

// generateCode asks the model for the capability source in a single
// isolated completion. No capability declarations are offered; this
// call produces code, not actions.
func (p *Pipeline) generateCode(ctx context.Context, spec Specification, existingCode string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: buildCodegenPrompt(spec, p.deniedImports, existingCode)},
		{Role: llm.RoleUser, Content: requirementsText(spec)},
	}

	resp, err := p.client.Chat(ctx, p.codegenModel, messages, nil)
	if err != nil {
		return "", err
	}

	code := stripCodeFences(resp.Message.Content)
	if code == "" {
		return "", fmt.Errorf("model returned no code")
	}
	return code, nil
}

func (p *Pipeline) goBuild(ctx context.Context, srcDir, binPath string) error {
	ctx, cancel := context.WithTimeout(ctx, p.buildTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.goBin, "build", "-o", binPath, ".")
	cmd.Dir = srcDir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %v: %s", err, firstBytes(stderr.Bytes(), 2048))
	}
	return nil
}

func (p *Pipeline) step(tool, step string) {
	p.logger.Debug("forge step", "tool", tool, "step", step)
	p.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceForge,
		Kind:      events.KindForgeStep,
		Data:      map[string]any{"tool": tool, "step": step},
	})
}

func (p *Pipeline) publishComplete(tool string, ok, isUpdate bool) {
	p.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceForge,
		Kind:      events.KindForgeComplete,
		Data:      map[string]any{"tool": tool, "ok": ok, "is_update": isUpdate},
	})
}

func requirementsText(spec Specification) string {
	if spec.UpdateDescription != "" {
		return spec.UpdateDescription
	}
	return spec.ToolDescription
}
