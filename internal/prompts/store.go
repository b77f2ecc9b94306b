package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// validKeyPattern matches valid prompt keys (alphanumeric with dots, underscores).
var validKeyPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._]*$`)

const overrideExt = ".tmpl"

// Store reads prompt overrides from a directory, one <key>.tmpl per prompt.
// A nil Store or an empty directory has no overrides.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates an override store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the override directory.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Get returns the override for key, or nil when there is none.
func (s *Store) Get(key string) (*Override, error) {
	if !validKeyPattern.MatchString(key) {
		return nil, fmt.Errorf("invalid prompt key: %s", key)
	}
	if s == nil || s.dir == "" {
		return nil, nil
	}
	path := filepath.Join(s.dir, key+overrideExt)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read override %s: %w", key, err)
	}
	return &Override{Key: key, Text: string(data), Path: path}, nil
}

// List returns every override in the directory, sorted by key.
func (s *Store) List() ([]Override, error) {
	if s == nil || s.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	var out []Override
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, overrideExt) {
			continue
		}
		key := strings.TrimSuffix(name, overrideExt)
		if !validKeyPattern.MatchString(key) {
			s.logger.Warn("ignoring override with invalid key", "file", name)
			continue
		}
		o, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if o != nil {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Set writes an override for key.
func (s *Store) Set(key, text string) error {
	if !validKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid prompt key: %s", key)
	}
	if s == nil || s.dir == "" {
		return errors.New("override directory not configured")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create override dir: %w", err)
	}
	path := filepath.Join(s.dir, key+overrideExt)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write override %s: %w", key, err)
	}
	return nil
}
