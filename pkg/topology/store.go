package topology

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store reads and writes a topology seed file in YAML.
type Store struct {
	path string
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the file. A missing file returns nil, nil.
func (s *Store) Load() (*Topology, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Save writes t, creating parent directories.
func (s *Store) Save(t Topology) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// LoadOrDefault returns the stored topology, or Default when the file is
// missing or path is empty.
func LoadOrDefault(path string) (Topology, error) {
	if path == "" {
		return Default(), nil
	}
	t, err := NewStore(path).Load()
	if err != nil {
		return Topology{}, err
	}
	if t == nil {
		return Default(), nil
	}
	return *t, nil
}
