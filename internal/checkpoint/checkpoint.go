// Package checkpoint persists finished document results so a run can
// resume without regenerating them.
//
// A record on disk is ground truth: if Load succeeds for a key, that
// document is done.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jackzampolin/longform/internal/document"
)

const (
	filePrefix = "checkpoint_"
	fileExt    = ".json"
)

var (
	// ErrNotFound means no record exists for the key.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorrupt means a record exists but cannot be decoded.
	ErrCorrupt = errors.New("checkpoint corrupt")
	// ErrNotFinal means a result that is not complete was offered to Save.
	ErrNotFinal = errors.New("result is not final")
	// ErrInvalidKey means the key cannot be used as a file name.
	ErrInvalidKey = errors.New("invalid checkpoint key")
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Dir returns the checkpoint directory for one run:
// <root>/<model basename>/<generator>_checkpoints_<dataset>.
func Dir(root, model, generator, dataset string) string {
	return filepath.Join(root, path.Base(model), generator+"_checkpoints_"+dataset)
}

// Store is a directory of checkpoint records, one file per key. Writes for
// distinct keys may run concurrently.
type Store struct {
	dir    string
	logger *slog.Logger
}

// Open creates dir if needed and returns a store over it.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the record path for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, filePrefix+key+fileExt)
}

// Has reports whether a record file exists for key. It does not check
// that the record decodes; use Load for that.
func (s *Store) Has(key string) bool {
	if !validKey.MatchString(key) {
		return false
	}
	info, err := os.Stat(s.Path(key))
	return err == nil && info.Mode().IsRegular()
}

// Load reads the record for key. A record that cannot be read or decoded
// is logged and reported as ErrCorrupt so the caller regenerates it.
func (s *Store) Load(key string) (*document.Result, error) {
	if !validKey.MatchString(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Warn("failed to read checkpoint, regenerating", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	var res document.Result
	if err := json.Unmarshal(data, &res); err != nil {
		s.logger.Warn("failed to decode checkpoint, regenerating", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if !res.Status.Checkpointable() {
		s.logger.Warn("checkpoint holds an unfinished result, regenerating", "key", key, "status", res.Status)
		return nil, fmt.Errorf("%w: status %q", ErrCorrupt, res.Status)
	}
	return &res, nil
}

// Save writes res under key. The record appears whole or not at all: it is
// written to a temp file in the same directory, synced, then renamed.
func (s *Store) Save(key string, res *document.Result) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if res == nil || !res.Status.Checkpointable() {
		return ErrNotFinal
	}
	data, err := json.MarshalIndent(res, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := WriteFileAtomic(s.Path(key), data); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", key, err)
	}
	s.logger.Debug("checkpoint saved", "key", key, "bytes", len(data))
	return nil
}

// Keys returns every key with a record file, sorted.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// WriteFileAtomic replaces name with data via a synced temp file and a
// rename in the same directory.
func WriteFileAtomic(name string, data []byte) (err error) {
	dir, base := filepath.Split(name)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+"-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
