package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/nbriggs/artificer/internal/tools"
)

// Manifest is the self-description a forged capability prints when
// invoked with --describe. The probe step parses it and the
// verification step checks it against the specification before the
// capability is registered.
type Manifest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

const (
	describeFlag    = "--describe"
	maxProbeOutput  = 64 * 1024
	maxResultOutput = 256 * 1024
)

// Probe runs a forged binary with --describe and parses its manifest.
// A binary that fails to describe itself is structurally broken and is
// never registered.
func Probe(ctx context.Context, binPath string) (*Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binPath, describeFlag)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("describe probe: %v: %s", err, firstBytes(stderr.Bytes(), 512))
	}

	var m Manifest
	if err := json.Unmarshal(firstBytes(stdout.Bytes(), maxProbeOutput), &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest has no name")
	}
	if t, ok := m.Parameters["type"].(string); !ok || t != "object" {
		return nil, fmt.Errorf("manifest parameters must be a JSON schema object")
	}
	return &m, nil
}

// ProcessTool wraps a forged binary as a registry capability. Each
// invocation runs the binary with the argument JSON on stdin and reads
// the result JSON from stdout, bounded by timeout.
func ProcessTool(m *Manifest, binPath string, timeout time.Duration) *tools.Tool {
	return &tools.Tool{
		Name:        m.Name,
		Description: m.Description,
		Parameters:  m.Parameters,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			argsJSON, err := json.Marshal(args)
			if err != nil {
				return "", fmt.Errorf("encode arguments: %w", err)
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var stdout, stderr bytes.Buffer
			cmd := exec.CommandContext(ctx, binPath)
			cmd.Stdin = bytes.NewReader(argsJSON)
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
			if err := cmd.Run(); err != nil {
				if ctx.Err() == context.DeadlineExceeded {
					return "", fmt.Errorf("tool %q timed out after %s", m.Name, timeout)
				}
				return "", fmt.Errorf("tool %q failed: %v: %s", m.Name, err, firstBytes(stderr.Bytes(), 512))
			}
			return string(firstBytes(stdout.Bytes(), maxResultOutput)), nil
		},
	}
}

func firstBytes(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
