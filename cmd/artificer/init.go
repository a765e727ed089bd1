package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// defaultConfigYAML is the starter config written by artificer init.
var defaultConfigYAML = []byte(`# Artificer configuration
#
# Environment variables are expanded: ${ARTIFICER_API_KEY} below picks
# up the key from the environment at load time.

listen:
  address: ""
  port: 8080

llm:
  base_url: https://api.openai.com/v1
  api_key: ${ARTIFICER_API_KEY}
  model: gpt-4o
  # codegen_model: gpt-4o    # model used for tool synthesis (default: model)

agent:
  cycle_budget: 10
  history_window: 50

forge:
  # dir: data/generated      # where forged tool sources and binaries live
  go_bin: go
  build_timeout_sec: 120
  exec_timeout_sec: 30
  denied_imports:
    - os/exec
    - plugin
    - syscall

workspace:
  path: workspace            # root for read_file / list_dir (empty disables them)

data_dir: data
log_level: info
`)

// runInit initializes an Artificer working directory with default
// files. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Artificer workspace in %s\n", dir)

	for _, sub := range []string{"data", "workspace"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	configPath := filepath.Join(dir, "artificer.yaml")
	if err := writeIfMissing(configPath, defaultConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Set ARTIFICER_API_KEY and run 'artificer serve' or 'artificer chat'.")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, 0o644)
}
