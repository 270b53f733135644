package cache

import (
	"path/filepath"
	"sort"
	"testing"
)

func providers(t *testing.T) map[string]Provider {
	t.Helper()
	return map[string]Provider{
		"memory": NewMemCache(),
		"sqlite": NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db")),
	}
}

func TestPutAndMatch(t *testing.T) {
	for name, p := range providers(t) {
		if err := p.Put("prayer-app-v1", "/static/styles.css", []byte("body")); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		bytes, ok, err := p.Match("prayer-app-v1", "/static/styles.css")
		if err != nil {
			t.Fatalf("%s: match: %v", name, err)
		}
		if !ok {
			t.Fatalf("%s: expected hit", name)
		}
		if string(bytes) != "body" {
			t.Fatalf("%s: got %q", name, bytes)
		}
	}
}

func TestMatchMissesAcrossBuckets(t *testing.T) {
	for name, p := range providers(t) {
		if err := p.Put("prayer-app-v1", "/a", []byte("x")); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		if _, ok, err := p.Match("prayer-app-v2", "/a"); err != nil || ok {
			t.Fatalf("%s: expected miss in other bucket, got ok=%v err=%v", name, ok, err)
		}
		if _, ok, err := p.Match("prayer-app-v1", "/b"); err != nil || ok {
			t.Fatalf("%s: expected miss for other key, got ok=%v err=%v", name, ok, err)
		}
	}
}

func TestPutOverwrites(t *testing.T) {
	for name, p := range providers(t) {
		p.Put("b", "/a", []byte("old"))
		p.Put("b", "/a", []byte("new"))
		bytes, ok, err := p.Match("b", "/a")
		if err != nil || !ok {
			t.Fatalf("%s: match: ok=%v err=%v", name, ok, err)
		}
		if string(bytes) != "new" {
			t.Fatalf("%s: got %q", name, bytes)
		}
	}
}

func TestDelete(t *testing.T) {
	for name, p := range providers(t) {
		p.Put("b", "/a", []byte("x"))
		if deleted, err := p.Delete("b", "/a"); err != nil || !deleted {
			t.Fatalf("%s: delete: deleted=%v err=%v", name, deleted, err)
		}
		if _, ok, _ := p.Match("b", "/a"); ok {
			t.Fatalf("%s: entry still present after delete", name)
		}
		if deleted, err := p.Delete("b", "/a"); err != nil || deleted {
			t.Fatalf("%s: second delete: deleted=%v err=%v", name, deleted, err)
		}
	}
}

func TestKeys(t *testing.T) {
	for name, p := range providers(t) {
		p.Put("b", "/b", []byte("2"))
		p.Put("b", "/a", []byte("1"))
		p.Put("other", "/c", []byte("3"))
		keys, err := p.Keys("b")
		if err != nil {
			t.Fatalf("%s: keys: %v", name, err)
		}
		sort.Strings(keys)
		if len(keys) != 2 || keys[0] != "/a" || keys[1] != "/b" {
			t.Fatalf("%s: got keys %v", name, keys)
		}
	}
}

func TestBucketsAndDeleteBucket(t *testing.T) {
	for name, p := range providers(t) {
		p.Put("prayer-app-v1", "/a", []byte("1"))
		p.Put("prayer-app-v2", "/a", []byte("2"))
		names, err := p.Buckets()
		if err != nil {
			t.Fatalf("%s: buckets: %v", name, err)
		}
		sort.Strings(names)
		if len(names) != 2 || names[0] != "prayer-app-v1" || names[1] != "prayer-app-v2" {
			t.Fatalf("%s: got buckets %v", name, names)
		}

		if err := p.DeleteBucket("prayer-app-v1"); err != nil {
			t.Fatalf("%s: delete bucket: %v", name, err)
		}
		names, err = p.Buckets()
		if err != nil {
			t.Fatalf("%s: buckets: %v", name, err)
		}
		if len(names) != 1 || names[0] != "prayer-app-v2" {
			t.Fatalf("%s: got buckets %v after delete", name, names)
		}
		if _, ok, _ := p.Match("prayer-app-v1", "/a"); ok {
			t.Fatalf("%s: entry survived bucket delete", name)
		}
	}
}
