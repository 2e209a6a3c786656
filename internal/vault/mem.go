package vault

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mem is an in-memory Store for tests and ephemeral embedding.
type Mem struct {
	mu      sync.RWMutex
	files   map[string]string
	folders map[string]bool
}

func NewMem() *Mem {
	return &Mem{
		files:   make(map[string]string),
		folders: make(map[string]bool),
	}
}

func (m *Mem) Exists(path string) bool {
	path = normalizePath(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[path]; ok {
		return true
	}
	return m.folders[path]
}

func (m *Mem) Read(path string) (string, error) {
	path = normalizePath(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("read %s: file does not exist", path)
	}
	return content, nil
}

func (m *Mem) Create(path, content string) error {
	path = normalizePath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		return fmt.Errorf("create %s: file exists", path)
	}
	m.files[path] = content
	return nil
}

func (m *Mem) Modify(path, content string) error {
	path = normalizePath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("modify %s: file does not exist", path)
	}
	m.files[path] = content
	return nil
}

func (m *Mem) Delete(path string) error {
	path = normalizePath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("delete %s: file does not exist", path)
	}
	delete(m.files, path)
	return nil
}

func (m *Mem) CreateFolder(path string) error {
	path = normalizePath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[path] = true
	return nil
}

func (m *Mem) List(folder string) ([]string, error) {
	prefix := normalizePath(folder) + "/"
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for path := range m.files {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		name := strings.TrimPrefix(path, prefix)
		if strings.Contains(name, "/") {
			continue // nested deeper than folder
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func normalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}
