package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/pkg/generic"
)

// Config selects the directory and the encoding for new files.
type Config struct {
	Dir    string `mapstructure:"dir" json:"dir" yaml:"dir"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

func DefaultConfig() Config {
	return Config{Dir: "trees", Format: string(bt.FormatYAML)}
}

var extensions = []string{".yaml", ".yml", ".json"}

// FileStore keeps one file per definition. Content fingerprints let Save
// skip identical writes and let Watch ignore this process's own writes.
type FileStore struct {
	dir    string
	format bt.Format
	logger log.Log

	mu     sync.Mutex
	hashes map[string]uint64

	loads, writes, skipped, deletes atomic.Uint64
}

var _ WatchableStore = (*FileStore)(nil)

// NewFileStore creates the directory if needed.
func NewFileStore(cfg Config, logger log.Log) (*FileStore, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	format := bt.Format(strings.ToLower(cfg.Format))
	switch format {
	case "":
		format = bt.FormatYAML
	case bt.FormatYAML, bt.FormatJSON:
	default:
		return nil, fmt.Errorf("store: unsupported format %q", cfg.Format)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	return &FileStore{
		dir:    cfg.Dir,
		format: format,
		logger: logger.Named("store"),
		hashes: make(map[string]uint64),
	}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Load(_ context.Context, name string) (*bt.Definition, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	path, err := s.find(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	def, err := bt.Decode(bytes.NewReader(data), bt.FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = name
	}

	s.mu.Lock()
	s.hashes[name] = xxhash.Sum64(data)
	s.mu.Unlock()
	s.loads.Add(1)
	return def, nil
}

func (s *FileStore) Save(_ context.Context, def *bt.Definition) (bool, error) {
	if def == nil {
		return false, fmt.Errorf("%w: nil definition", ErrInvalidName)
	}
	if err := checkName(def.Name); err != nil {
		return false, err
	}
	format := s.format
	path := s.path(def.Name, format)
	if existing, err := s.find(def.Name); err == nil {
		path = existing
		format = bt.FormatFromPath(existing)
	}

	buf := generic.Buffers.Get()
	defer generic.Buffers.Put(buf)
	if err := def.Encode(buf, format); err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", def.Name, err)
	}
	data := buf.Bytes()
	sum := xxhash.Sum64(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.hashes[def.Name]; ok && prev == sum {
		if _, err := os.Stat(path); err == nil {
			s.skipped.Add(1)
			return false, nil
		}
	}
	if err := writeAtomic(path, data); err != nil {
		return false, err
	}
	s.hashes[def.Name] = sum
	s.writes.Add(1)
	s.logger.Debug("definition saved", log.String("name", def.Name), log.String("path", path))
	return true, nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	path, err := s.find(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	s.mu.Lock()
	delete(s.hashes, name)
	s.mu.Unlock()
	s.deletes.Add(1)
	return nil
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := definitionName(e.Name())
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) Statistics() Statistics {
	return Statistics{
		Loads:   s.loads.Load(),
		Writes:  s.writes.Load(),
		Skipped: s.skipped.Load(),
		Deletes: s.deletes.Load(),
	}
}

// Watch reports definitions created or rewritten by another writer. Files
// whose content matches the last load or save are ignored.
func (s *FileStore) Watch(ctx context.Context, fn func(name string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("store watch error", log.Error(err))
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			name, ok := definitionName(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			data, err := os.ReadFile(ev.Name)
			if err != nil || len(data) == 0 {
				continue
			}
			sum := xxhash.Sum64(data)
			s.mu.Lock()
			prev, known := s.hashes[name]
			s.mu.Unlock()
			if known && prev == sum {
				continue
			}
			s.logger.Info("definition changed on disk", log.String("name", name))
			fn(name)
		}
	}
}

func (s *FileStore) path(name string, format bt.Format) string {
	return filepath.Join(s.dir, name+format.Ext())
}

func (s *FileStore) find(name string) (string, error) {
	for _, ext := range extensions {
		path := filepath.Join(s.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func definitionName(file string) (string, bool) {
	if strings.HasPrefix(file, ".") {
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(file))
	for _, known := range extensions {
		if ext == known {
			return strings.TrimSuffix(file, filepath.Ext(file)), true
		}
	}
	return "", false
}

// writeAtomic writes through a temp file in the same directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}
