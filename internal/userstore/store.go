// Package userstore persists repository bindings, one JSON file per
// principal. Writes are atomic (temp file plus rename) so a crash never
// leaves a half-written binding behind.
package userstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/schema"
)

// Store persists repository bindings to disk.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a binding store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a binding store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Get reads the binding for a principal. The second return is false when
// no binding exists.
func (s *Store) Get(id schema.ChatID) (schema.RepositoryBinding, bool, error) {
	path := s.pathFor(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("binding load miss", "chat_id", id)
			}
			return schema.RepositoryBinding{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("binding load failed", "chat_id", id, "err", err)
		}
		return schema.RepositoryBinding{}, false, err
	}
	var binding schema.RepositoryBinding
	if err := json.Unmarshal(data, &binding); err != nil {
		if s.log != nil {
			s.log.Warn("binding load failed", "chat_id", id, "err", err)
		}
		return schema.RepositoryBinding{}, false, err
	}
	return binding, true, nil
}

// Put writes the binding for a principal, replacing any existing one.
func (s *Store) Put(id schema.ChatID, binding schema.RepositoryBinding) error {
	path := s.pathFor(id)
	data, err := json.MarshalIndent(binding, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "binding-*.json")
	if err != nil {
		if s.log != nil {
			s.log.Warn("binding save failed", "chat_id", id, "err", err)
		}
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("binding save failed", "chat_id", id, "err", err)
		}
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		if s.log != nil {
			s.log.Warn("binding save failed", "chat_id", id, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Debug("binding save ok", "chat_id", id)
	}
	return nil
}

// Delete removes the binding for a principal. Missing bindings are not an
// error.
func (s *Store) Delete(id schema.ChatID) error {
	err := os.Remove(s.pathFor(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("binding delete failed", "chat_id", id, "err", err)
		}
		return err
	}
	return nil
}

// List returns all stored bindings sorted by principal id.
func (s *Store) List() ([]schema.RepositoryBinding, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var bindings []schema.RepositoryBinding
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			if s.log != nil {
				s.log.Warn("binding list read failed", "file", entry.Name(), "err", err)
			}
			continue
		}
		var binding schema.RepositoryBinding
		if err := json.Unmarshal(data, &binding); err != nil {
			if s.log != nil {
				s.log.Warn("binding list parse failed", "file", entry.Name(), "err", err)
			}
			continue
		}
		bindings = append(bindings, binding)
	}
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].PrincipalID < bindings[j].PrincipalID
	})
	return bindings, nil
}

func (s *Store) pathFor(id schema.ChatID) string {
	name := sanitize(string(id))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
