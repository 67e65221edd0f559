package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/core/port"

	yaml "gopkg.in/yaml.v3"
)

const FilePerm os.FileMode = 0o600

var ErrNotFound = errors.New("entry not found")

// EntryFile persists config entries, token included, to a single YAML file.
// An empty path keeps entries in memory only. It is safe for concurrent use.
type EntryFile struct {
	mu      sync.Mutex
	path    string
	entries map[string]domain.ConfigEntry
}

type entryDocument struct {
	Entries []domain.ConfigEntry `yaml:"entries"`
}

// ensure interface compliance
var _ port.EntryStore = (*EntryFile)(nil)

func NewEntryFile(path string) *EntryFile {
	return &EntryFile{
		path:    path,
		entries: map[string]domain.ConfigEntry{},
	}
}

// Load reads the file. A missing file is an empty store.
func (f *EntryFile) Load() ([]domain.ConfigEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.path != "" {
		data, err := os.ReadFile(f.path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", f.path, err)
		}
		if err == nil {
			var doc entryDocument
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", f.path, err)
			}
			f.entries = make(map[string]domain.ConfigEntry, len(doc.Entries))
			for _, entry := range doc.Entries {
				f.entries[entry.EntryId] = entry
			}
		}
	}
	return f.sorted(), nil
}

func (f *EntryFile) Save(entry domain.ConfigEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.entries[entry.EntryId]
	f.entries[entry.EntryId] = entry
	if err := f.write(); err != nil {
		if existed {
			f.entries[entry.EntryId] = prev
		} else {
			delete(f.entries, entry.EntryId)
		}
		return err
	}
	return nil
}

func (f *EntryFile) Delete(entryId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, ok := f.entries[entryId]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, entryId)
	}
	delete(f.entries, entryId)
	if err := f.write(); err != nil {
		f.entries[entryId] = prev
		return err
	}
	return nil
}

func (f *EntryFile) sorted() []domain.ConfigEntry {
	out := make([]domain.ConfigEntry, 0, len(f.entries))
	for _, entry := range f.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EntryId < out[j].EntryId
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// write replaces the file through a temporary sibling so a crash never
// leaves a truncated store behind.
func (f *EntryFile) write() error {
	if f.path == "" {
		return nil
	}
	data, err := yaml.Marshal(entryDocument{Entries: f.sorted()})
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	tmp := f.path + ".tmp"
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}
	if err := os.WriteFile(tmp, data, FilePerm); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
