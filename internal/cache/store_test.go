package cache

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "prerender", Key: "https://shop.example.com/products?id=7"}

	modTime := time.Now().Add(-time.Hour).UTC()
	payload := []byte("payload")
	if _, err := store.Put(context.Background(), locator, bytes.NewReader(payload), PutOptions{ModTime: modTime}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if !result.Entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), Locator{Namespace: "prerender", Key: "https://shop.example.com/missing"})
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "prerender", Key: "https://shop.example.com/remove"}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), locator); err == nil || err != ErrNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
}

func TestStorePutCancelledLeavesNothing(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	locator := Locator{Namespace: "prerender", Key: "https://shop.example.com/slow"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, locator, strings.NewReader("data"), PutOptions{}); err == nil {
		t.Fatalf("expected cancelled put to fail")
	}
	if _, err := store.Get(context.Background(), locator); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after cancelled put, got %v", err)
	}

	var leftovers []string
	_ = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	if len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}
}

func TestStoreRejectsUnsafeNamespace(t *testing.T) {
	store := newTestStore(t)
	for _, ns := range []string{"", "..", "a/b", "../escape"} {
		_, err := store.Put(context.Background(), Locator{Namespace: ns, Key: "k"}, strings.NewReader("x"), PutOptions{})
		if err == nil {
			t.Fatalf("namespace %q should be rejected", ns)
		}
	}
}

func TestStoreHashesKeysIntoNamespace(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	entry, err := store.Put(context.Background(), Locator{Namespace: "prerender", Key: "https://a/../../etc/passwd"}, strings.NewReader("x"), PutOptions{})
	if err != nil {
		t.Fatalf("put error: %v", err)
	}
	rel, err := filepath.Rel(base, entry.FilePath)
	if err != nil || !strings.HasPrefix(rel, "prerender"+string(filepath.Separator)) {
		t.Fatalf("entry escaped namespace: %s", entry.FilePath)
	}
}

func TestFresh(t *testing.T) {
	now := time.Now()
	entry := Entry{ModTime: now.Add(-time.Minute)}
	if !Fresh(entry, time.Hour, now) {
		t.Fatalf("entry within ttl should be fresh")
	}
	if Fresh(entry, 30*time.Second, now) {
		t.Fatalf("entry older than ttl should be stale")
	}
	if !Fresh(entry, 0, now) {
		t.Fatalf("zero ttl never expires")
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
