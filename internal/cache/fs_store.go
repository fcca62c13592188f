package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，目录不存在时自动创建。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	root, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	return &fileStore{root: root, locks: newKeyedMutex()}, nil
}

// fileStore 对同一 Locator 的写入与删除串行化，读取不加锁，依赖 rename 的原子性。
type fileStore struct {
	root  string
	locks *keyedMutex
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &ReadResult{
		Entry: Entry{
			Locator:   locator,
			FilePath:  path,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		},
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	path, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(locatorKey(locator))
	defer unlock()

	size, err := writeAtomic(ctx, path, body)
	if err != nil {
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		return nil, err
	}
	return &Entry{Locator: locator, FilePath: path, SizeBytes: size, ModTime: modTime}, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.entryPath(locator)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(locatorKey(locator))
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) entryPath(locator Locator) (string, error) {
	ns := strings.Trim(locator.Namespace, "/")
	if ns == "" || strings.Contains(ns, "..") || strings.ContainsAny(ns, `/\`) {
		return "", errors.New("invalid cache namespace")
	}
	if locator.Key == "" {
		return "", errors.New("cache key required")
	}
	sum := sha256.Sum256([]byte(locator.Key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, ns, name[:2], name), nil
}

// writeAtomic 先写同目录临时文件再 rename，失败时清理临时文件。
func writeAtomic(ctx context.Context, path string, body io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return 0, err
	}

	size, err := io.Copy(tmp, ctxReader{ctx: ctx, r: body})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return size, nil
}

// ctxReader 在每次 Read 前检查 ctx，长时间写入可被取消。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// keyedMutex 为每个键提供独立的互斥锁，无人持有时回收。
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func locatorKey(locator Locator) string {
	return locator.Namespace + "::" + locator.Key
}
