// Package persist stores the dev server's shared text files on disk.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pkt.systems/pslog"
)

// ErrInvalidName indicates a file name that would escape the store directory.
var ErrInvalidName = errors.New("invalid file name")

// Store persists line-oriented text files in a single directory.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("root", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// List returns the regular, non-hidden files in the store, sorted by name.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if s.log != nil {
			s.log.Warn("file list failed", "err", err)
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load reads name as lines. A missing file loads as a single empty line and
// reports false.
func (s *Store) Load(name string) ([]string, bool, error) {
	path, err := s.pathFor(name)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("file load miss", "file", name)
			}
			return []string{""}, false, nil
		}
		if s.log != nil {
			s.log.Warn("file load failed", "file", name, "err", err)
		}
		return nil, false, err
	}
	return SplitLines(string(data)), true, nil
}

// Save atomically replaces name with lines.
func (s *Store) Save(name string, lines []string) error {
	path, err := s.pathFor(name)
	if err != nil {
		return err
	}
	data := JoinLines(lines)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".save-*")
	if err != nil {
		if s.log != nil {
			s.log.Warn("file save failed", "file", name, "err", err)
		}
		return err
	}
	if _, err := tmp.WriteString(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("file save failed", "file", name, "err", err)
		}
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("file save failed", "file", name, "err", err)
		}
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("file save failed", "file", name, "err", err)
		}
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("file save failed", "file", name, "err", err)
		}
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("file save failed", "file", name, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("file save ok", "file", name, "lines", len(lines))
	}
	return nil
}

func (s *Store) pathFor(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// SplitLines breaks text into lines. A trailing newline does not start a new
// line and empty text is one empty line.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) string {
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
