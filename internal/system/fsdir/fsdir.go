// Package fsdir adapts a filesystem directory into a rollbackable
// system: observations hash every file, checkpoints copy the tree into a
// staging area, and rollbacks restore it. Suitable for targets whose
// state lives on disk (generated files, uploaded artifacts, local
// queues).
package fsdir

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/probemap/probemap/internal/state"
	"github.com/probemap/probemap/internal/world"
)

// Dir watches one directory tree.
type Dir struct {
	mu        sync.Mutex
	name      string
	root      string
	staging   string
	tokens    map[string]string
	nextToken int
}

// Option configures a Dir at construction.
type Option func(*Dir)

// WithStaging places checkpoint copies under dir instead of a fresh
// temporary directory. It must lie outside the observed root.
func WithStaging(dir string) Option {
	return func(d *Dir) {
		d.staging = dir
	}
}

// New creates an adapter for the directory at root, which must exist.
func New(name, root string, opts ...Option) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("fsdir %s: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fsdir %s: %s is not a directory", name, root)
	}

	d := &Dir{name: name, root: root, tokens: make(map[string]string)}
	for _, opt := range opts {
		opt(d)
	}

	if d.staging == "" {
		staging, err := os.MkdirTemp("", "probemap-fsdir-")
		if err != nil {
			return nil, fmt.Errorf("fsdir %s: create staging: %w", name, err)
		}
		d.staging = staging
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fsdir %s: %w", name, err)
	}
	absStaging, err := filepath.Abs(d.staging)
	if err != nil {
		return nil, fmt.Errorf("fsdir %s: %w", name, err)
	}
	if strings.HasPrefix(absStaging+string(filepath.Separator), absRoot+string(filepath.Separator)) {
		return nil, fmt.Errorf("fsdir %s: staging %s lies inside the observed root", name, d.staging)
	}
	return d, nil
}

// Name implements world.System.
func (d *Dir) Name() string { return d.name }

// Observe implements world.System: one entry per regular file, keyed by
// slash-separated relative path, carrying size and content hash.
func (d *Dir) Observe(ctx context.Context) (state.Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	files := make(map[string]any)
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if !entry.Type().IsRegular() {
			return fmt.Errorf("unsupported file type at %s", path)
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		sum, size, err := hashFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = map[string]any{
			"size":   size,
			"sha256": sum,
		}
		return nil
	})
	if err != nil {
		return state.Observation{}, fmt.Errorf("observe %s: %w", d.name, err)
	}
	return state.NewObservation(d.name, map[string]any{"files": files}), nil
}

// Checkpoint implements world.System by copying the tree into staging.
func (d *Dir) Checkpoint(ctx context.Context, name string) (world.Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextToken++
	token := fmt.Sprintf("%s-cp-%d", d.name, d.nextToken)
	target := filepath.Join(d.staging, token)
	if err := copyTree(d.root, target); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", d.name, err)
	}
	d.tokens[token] = target
	return token, nil
}

// Rollback implements world.System: wipe the root and restore the staged
// copy.
func (d *Dir) Rollback(ctx context.Context, token world.Token) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key, ok := token.(string)
	if !ok {
		return fmt.Errorf("rollback %s: foreign token %v", d.name, token)
	}
	staged, ok := d.tokens[key]
	if !ok {
		return fmt.Errorf("rollback %s: unknown token %q", d.name, key)
	}

	if err := clearDir(d.root); err != nil {
		return fmt.Errorf("rollback %s: %w", d.name, err)
	}
	if err := copyTree(staged, d.root); err != nil {
		return fmt.Errorf("rollback %s: %w", d.name, err)
	}
	return nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !entry.Type().IsRegular() {
			return fmt.Errorf("unsupported file type at %s", path)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
