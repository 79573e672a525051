package farm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"fieldsweep/internal/planner"
)

// Farm is one registered inspection area.
type Farm struct {
	ID         int              `yaml:"id" json:"id"`
	Name       string           `yaml:"name" json:"name"`
	Location   string           `yaml:"location,omitempty" json:"location,omitempty"`
	Boundary   planner.Boundary `yaml:"boundary" json:"boundary"`
	CreatedUTC string           `yaml:"created_utc" json:"created_utc"`
}

var ErrNotFound = errors.New("farm not found")

// Store keeps the farm registry in memory, optionally persisted to a YAML
// file so registrations survive a restart. Persistence failures surface to
// the caller; the in-memory registry is the source of truth.
type Store struct {
	mu     sync.Mutex
	path   string
	nextID int
	farms  []Farm
}

// NewStore opens the registry. An empty path means memory-only. A missing
// file is an empty registry, not an error.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, nextID: 1}
	if path == "" {
		return s, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("farm store read: %w", err)
	}

	var onDisk struct {
		Farms []Farm `yaml:"farms"`
	}
	if err := yaml.Unmarshal(b, &onDisk); err != nil {
		return nil, fmt.Errorf("farm store parse: %w", err)
	}
	s.farms = onDisk.Farms
	for _, f := range s.farms {
		if f.ID >= s.nextID {
			s.nextID = f.ID + 1
		}
	}
	return s, nil
}

func (s *Store) List() []Farm {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Farm, len(s.farms))
	copy(out, s.farms)
	return out
}

func (s *Store) Get(id int) (Farm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.farms {
		if f.ID == id {
			return f, true
		}
	}
	return Farm{}, false
}

// Add validates the boundary, assigns an ID, and persists.
func (s *Store) Add(nowUTC time.Time, name, location string, b planner.Boundary) (Farm, error) {
	if err := b.Validate(); err != nil {
		return Farm{}, err
	}
	if strings.TrimSpace(name) == "" {
		return Farm{}, errors.New("farm name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := Farm{
		ID:         s.nextID,
		Name:       strings.TrimSpace(name),
		Location:   strings.TrimSpace(location),
		Boundary:   b,
		CreatedUTC: nowUTC.UTC().Format(time.RFC3339),
	}
	s.nextID++
	s.farms = append(s.farms, f)

	if err := s.saveLocked(); err != nil {
		return Farm{}, err
	}
	return f, nil
}

func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.farms {
		if f.ID == id {
			s.farms = append(s.farms[:i], s.farms[i+1:]...)
			return s.saveLocked()
		}
	}
	return ErrNotFound
}

// saveLocked writes the registry via a temp file and rename so a crash
// mid-write cannot truncate the registry.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	out, err := yaml.Marshal(struct {
		Farms []Farm `yaml:"farms"`
	}{Farms: s.farms})
	if err != nil {
		return fmt.Errorf("farm store marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".farms-*.yaml")
	if err != nil {
		return fmt.Errorf("farm store temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("farm store write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("farm store close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("farm store rename: %w", err)
	}
	return nil
}
