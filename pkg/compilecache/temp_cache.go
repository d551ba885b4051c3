package compilecache

import (
	"path/filepath"
	"testing"
)

// MustTempCache returns a Cache backed by a file in a temporary directory.
// The Cache is closed when the test ends.
func MustTempCache(t testing.TB) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "compile.db"))
	if err != nil {
		t.Fatalf("open temp compile cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
