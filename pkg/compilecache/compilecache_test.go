package compilecache

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	bolt "go.etcd.io/bbolt"
)

func TestCache(t *testing.T) {
	c := MustTempCache(t)
	key := Key("/a.mjs", []byte("export const a = 1"), "test")

	if _, err := c.Get(key); err != ErrNotFound {
		t.Errorf("Get on empty cache: got err %v, want ErrNotFound", err)
	}
	if err := c.Put(key, []byte("exports.a = 1")); err != nil {
		t.Fatal(err)
	}
	code, err := c.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("exports.a = 1", string(code)); diff != "" {
		t.Errorf("code (-want +got):\n%s", diff)
	}
	if n, _ := c.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
	if err := c.Delete(key); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(key); err != ErrNotFound {
		t.Errorf("Get after Delete: got err %v", err)
	}
}

func TestKey(t *testing.T) {
	base := Key("/a.mjs", []byte("src"), "v1")
	for name, other := range map[string]string{
		"id":       Key("/b.mjs", []byte("src"), "v1"),
		"source":   Key("/a.mjs", []byte("src2"), "v1"),
		"lowering": Key("/a.mjs", []byte("src"), "v2"),
		"boundary": Key("/a.mjs\x00src", nil, "v1"),
	} {
		if other == base {
			t.Errorf("changing the %s does not change the key", name)
		}
	}
	if Key("/a.mjs", []byte("src"), "v1") != base {
		t.Errorf("Key is not deterministic")
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	c.Put("k", []byte("v"))
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if v, err := c.Get("k"); err != nil || string(v) != "v" {
		t.Errorf("got (%q, %v) after reopening", v, err)
	}
}

func TestSchemaChangeDropsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	c.Put("k", []byte("v"))
	c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketMeta)).Put([]byte(keySchema), []byte("0"))
	})
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Get("k"); err != ErrNotFound {
		t.Errorf("entry survived a schema change: %v", err)
	}
}
