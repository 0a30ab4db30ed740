package prefs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// document is the on-disk layout of a [File] store.
type document struct {
	Values map[string]float64 `yaml:"values"`
}

// File is a store backed by a YAML file. Values are read once on open and
// written back on [File.Save] when they changed. It is safe for concurrent
// use.
type File struct {
	path string

	mu     sync.Mutex
	values map[string]float64
	dirty  bool
}

// OpenFile loads the store at path. A missing file yields an empty store that
// is created on the first Save.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, values: make(map[string]float64)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read %q: %w", path, err)
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("prefs: parse %q: %w", path, err)
	}
	maps.Copy(f.values, doc.Values)
	return f, nil
}

// Path returns the file the store persists to.
func (f *File) Path() string { return f.path }

// Float implements [audio.Store].
func (f *File) Float(key string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// SetFloat implements [audio.Store].
func (f *File) SetFloat(key string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.values[key]; ok && old == v {
		return
	}
	f.values[key] = v
	f.dirty = true
}

// Save implements [audio.Store]. The document is written to a temporary file
// in the same directory and renamed over the target.
func (f *File) Save() error {
	f.mu.Lock()
	if !f.dirty {
		f.mu.Unlock()
		return nil
	}
	data, err := yaml.Marshal(document{Values: maps.Clone(f.values)})
	f.dirty = false
	f.mu.Unlock()
	if err != nil {
		return fmt.Errorf("prefs: marshal: %w", err)
	}

	if err := writeAtomic(f.path, data); err != nil {
		f.mu.Lock()
		f.dirty = true
		f.mu.Unlock()
		return err
	}
	slog.Debug("prefs: saved", "path", f.path, "bytes", len(data))
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("prefs: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("prefs: rename: %w", err)
	}
	return nil
}
