// Package cache implements the keyed, filesystem-backed blob store
// described in spec.md §4.1: one file per logical key, with the file's
// mtime used as a freshness beacon by callers. There is no locking —
// the system is explicitly single-process (spec.md §5) — and write
// failures are reported as errors rather than being fatal, letting
// callers treat them as warnings per spec.md §7.
package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned by Read when the named entry doesn't exist.
var ErrNotFound = errors.New("cache: entry not found")

// Cache is a blob store rooted at <base>/<profile>.
type Cache struct {
	dir string
}

// New returns a Cache storing entries under filepath.Join(base, profile).
func New(base, profile string) *Cache {
	return &Cache{dir: filepath.Join(base, profile)}
}

// path returns the on-disk path for the entry named name.
func (c *Cache) path(name string) string {
	return filepath.Join(c.dir, name+".bin")
}

// Exists reports whether an entry named name is present.
func (c *Cache) Exists(name string) bool {
	_, err := os.Stat(c.path(name))
	return err == nil
}

// LastModified returns the modification time of the entry named name.
func (c *Cache) LastModified(name string) (time.Time, error) {
	fi, err := os.Stat(c.path(name))
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// Read returns the raw gob-encoded bytes stored under name.
func (c *Cache) Read(name string) ([]byte, error) {
	b, err := os.ReadFile(c.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return b, nil
}

// Write stores raw bytes under name, creating parent directories as needed.
func (c *Cache) Write(name string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache: creating %v: %w", c.dir, err)
	}
	if err := os.WriteFile(c.path(name), data, 0o644); err != nil {
		return fmt.Errorf("cache: writing %v: %w", name, err)
	}
	return nil
}

// ReadValue decodes the gob-encoded value stored under name into dst,
// a pointer to the destination value. It round-trips maps, ordered
// slices, and tuple-keyed maps, as spec.md §4.1/§6 requires.
func ReadValue(c *Cache, name string, dst interface{}) error {
	b, err := c.Read(name)
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(dst)
}

// WriteValue gob-encodes v and stores it under name.
func WriteValue(c *Cache, name string, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("cache: encoding %v: %w", name, err)
	}
	return c.Write(name, buf.Bytes())
}

// StaleBefore reports whether the cache entry named name is stale,
// i.e. doesn't exist or was last modified strictly before probe, per
// spec.md §3's freshness invariants ("stale iff its mtime is strictly
// less than ...").
func (c *Cache) StaleBefore(name string, probe time.Time) bool {
	mtime, err := c.LastModified(name)
	if err != nil {
		return true
	}
	return mtime.Before(probe)
}
