// Package vault is the markdown document store the memory engine reads
// and writes. Paths are vault-relative and '/'-separated.
package vault

// Store is the narrow interface the engine consumes. Create fails on an
// existing file and Modify on a missing one, so callers state their
// intent explicitly.
type Store interface {
	Exists(path string) bool
	Read(path string) (string, error)
	Create(path, content string) error
	Modify(path, content string) error
	Delete(path string) error
	CreateFolder(path string) error
	List(folder string) ([]string, error)
}
