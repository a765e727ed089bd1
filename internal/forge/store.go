package forge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StoredCapability is the on-disk record for one forged capability.
// Each capability lives in its own directory under the store root:
// main.go, go.mod, the built binary, and manifest.json.
type StoredCapability struct {
	Manifest     Manifest  `json:"manifest"`
	Requirements string    `json:"requirements,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store manages the source, binaries, and manifests of forged
// capabilities under a single root directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) dir(name string) string { return filepath.Join(s.root, name) }

// SourceDir returns the directory holding a capability's source.
func (s *Store) SourceDir(name string) string { return s.dir(name) }

// BinaryPath returns where a capability's built binary lives.
func (s *Store) BinaryPath(name string) string { return filepath.Join(s.dir(name), name) }

// WriteSource writes main.go plus a minimal go.mod for one capability
// and returns the source directory.
func (s *Store) WriteSource(name, code string) (string, error) {
	dir := s.dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create capability dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	gomod := fmt.Sprintf("module capability/%s\n\ngo 1.24\n", name)
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(gomod), 0o644); err != nil {
		return "", fmt.Errorf("write go.mod: %w", err)
	}
	return dir, nil
}

// ReadSource returns a capability's current main.go, for updates.
func (s *Store) ReadSource(name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir(name), "main.go"))
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return string(b), nil
}

// WriteManifest persists the capability record next to its source.
func (s *Store) WriteManifest(name string, rec StoredCapability) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir(name), "manifest.json"), b, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads one capability record.
func (s *Store) ReadManifest(name string) (*StoredCapability, error) {
	b, err := os.ReadFile(filepath.Join(s.dir(name), "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var rec StoredCapability
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &rec, nil
}

// List returns the names of all stored capabilities: every directory
// under the root that carries a manifest.json.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read store root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), "manifest.json")); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
