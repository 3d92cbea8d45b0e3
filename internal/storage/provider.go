// Package storage gives read/write access to the directory recordings are
// imported from.
package storage

import "github.com/starford/cadence/internal/models"

// DefaultPattern matches FIT recordings at any depth, in either case.
const DefaultPattern = "**/*.[fF][iI][tT]"

// Provider is the interface for source directory operations. All paths are
// relative to the source root and use forward slashes.
type Provider interface {
	// List returns every file under dir whose path matches the provider's pattern.
	List(dir string) ([]models.SourceFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Match reports whether path is a candidate recording.
	Match(path string) bool
	// Rel converts an absolute path under the root to a provider path.
	Rel(abs string) (string, error)
	// Root returns the absolute source directory.
	Root() string
}
