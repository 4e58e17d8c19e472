// Package bridge is the engine's view of the document filesystem: the
// source of truth the index is derived from. The engine reads and writes
// whole files through it and never touches the disk directly.
package bridge

// Bridge is the consumed filesystem interface.
type Bridge interface {
	Get(path string) (string, error)
	Put(path string, contents string) error
	Delete(path string) error
	// Glob enumerates files under rootPath carrying the format extension.
	Glob(rootPath string, extension string) ([]string, error)
	// PutConfig writes a generated config record. A bridge that does not
	// support building treats this as a no-op.
	PutConfig(path string, contents string) error
	SupportsBuilding() bool
}
