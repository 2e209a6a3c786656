package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS stores documents as files under a root directory.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("empty vault root")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create vault root: %w", err)
	}
	return &FS{root: root}, nil
}

// Root returns the directory backing the vault.
func (v *FS) Root() string { return v.root }

func (v *FS) abs(rel string) (string, error) {
	rel = strings.TrimPrefix(strings.TrimSpace(rel), "/")
	if rel == "" {
		return "", fmt.Errorf("empty vault path")
	}
	native := filepath.FromSlash(rel)
	if !filepath.IsLocal(native) {
		return "", fmt.Errorf("path escapes vault: %s", rel)
	}
	return filepath.Join(v.root, native), nil
}

func (v *FS) Exists(path string) bool {
	abs, err := v.abs(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

func (v *FS) Read(path string) (string, error) {
	abs, err := v.abs(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (v *FS) Create(path, content string) error {
	abs, err := v.abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("create parent folder: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func (v *FS) Modify(path, content string) error {
	abs, err := v.abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("modify %s: %w", path, err)
	}
	return os.WriteFile(abs, []byte(content), 0644)
}

func (v *FS) Delete(path string) error {
	abs, err := v.abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (v *FS) CreateFolder(path string) error {
	abs, err := v.abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("create folder %s: %w", path, err)
	}
	return nil
}

// List returns the file names directly inside folder, sorted. A missing
// folder lists as empty rather than failing.
func (v *FS) List(folder string) ([]string, error) {
	abs, err := v.abs(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
