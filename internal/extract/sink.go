package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink durably stores an extracted object under a name
type Sink interface {
	Save(name string, v any) error
}

// FileSink writes each object as indented JSON to Dir/name
type FileSink struct {
	Dir string
}

// NewFileSink creates a sink rooted at dir ("" means the working directory)
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Save writes v to the named file, creating Dir if needed
func (s *FileSink) Save(name string, v any) error {
	if name == "" {
		return fmt.Errorf("empty destination name")
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	path := name
	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		path = filepath.Join(s.Dir, name)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Path returns where Save stores name
func (s *FileSink) Path(name string) string {
	if s.Dir == "" {
		return name
	}
	return filepath.Join(s.Dir, name)
}

// MemorySink keeps saved objects in memory
type MemorySink struct {
	mu      sync.RWMutex
	objects map[string]any
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{objects: make(map[string]any)}
}

func (s *MemorySink) Save(name string, v any) error {
	if name == "" {
		return fmt.Errorf("empty destination name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = v
	return nil
}

// Get returns the object saved under name
func (s *MemorySink) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.objects[name]
	return v, ok
}

// Len returns the number of stored objects
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
