// Package vault is the adapter for the Markdown note collection that
// export runs write into.
package vault

// Outcome reports what a write did to the underlying file.
type Outcome int

// Write outcomes.
const (
	Created Outcome = iota
	Updated
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	}
	return "unknown"
}

// Provider is the interface for vault file operations. All paths are
// relative to the vault root.
type Provider interface {
	// List returns the relative path of every .md file under dir.
	List(dir string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent
	// directories as needed. Writing bytes identical to the current
	// file content reports Unchanged and leaves the file untouched.
	Write(path string, content []byte) (Outcome, error)
	// EnsureDir creates dir (and parents) if missing.
	EnsureDir(dir string) error
}
