package storage

import (
	"fmt"
	"io"
)

// NewStore builds an uninitialized store. An empty kind selects memory.
// The sqlite kind is only available in binaries built with -tags sqlite.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	}
	return nil, fmt.Errorf("unsupported store backend %q (want memory or sqlite)", kind)
}

func DefaultStoreKind() string { return defaultStoreKind }

// CloseIfSupported closes stores that hold external resources.
func CloseIfSupported(store Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
