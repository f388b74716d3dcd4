package prefs

import "fmt"

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open returns the store for backend. Close on the returned func releases
// resources and is a no-op for backends without any.
func Open(backend, path string) (Store, func() error, error) {
	noop := func() error { return nil }
	switch backend {
	case "", BackendFile:
		return NewFileStore(path), noop, nil
	case BackendSQLite:
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown preferences backend %q", backend)
	}
}
