package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	logx "gitnotify/pkg/logx"
)

// Store owns one settings file on disk.
//
// Readers go through Read (shared lock), writers through Mutate (exclusive
// lock held across load, set and persist). The lock is both an in-process
// RWMutex and an flock on "<path>.lock", so two processes sharing the file
// can't lose each other's updates.
type Store struct {
	path string
	log  logx.Logger

	mu sync.RWMutex

	// beforeRename runs after the temp file is written and synced, right
	// before it replaces the destination.
	beforeRename func(tmp string) error
}

func NewStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: filepath.Clean(path), log: log}
}

func (s *Store) Path() string { return s.path }

// Load reads and parses the file without taking any lock.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, s.path)
		}
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return doc, nil
}

// Read loads the current document under a shared lock and hands it to fn.
func (s *Store) Read(fn func(doc *Document) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unlock, err := s.flock(false)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.Load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// Mutate sets (or, with a nil value, toggles) the boolean leaf at path and
// persists the result. The returned document reflects what is on disk: on
// failure it is the unchanged document, or nil when nothing could be loaded.
func (s *Store) Mutate(path string, value *bool) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.flock(true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := s.SetPath(doc, path, value); err != nil {
		return doc, err
	}
	return doc, nil
}

// SetPath overwrites an existing boolean leaf in doc and persists it. When
// persisting fails the in-memory value is put back, so doc never runs ahead
// of the file. SetPath itself takes no lock; use Mutate for that.
func (s *Store) SetPath(doc *Document, path string, value *bool) error {
	prev, err := doc.set(path, value)
	if err != nil {
		return err
	}
	if err := s.Persist(doc); err != nil {
		doc.restore(path, prev)
		s.log.Warn("settings persist failed, change rolled back",
			logx.String("path", s.path), logx.String("key", path), logx.Err(err))
		return err
	}
	return nil
}

// Persist writes doc over the existing file. It refuses to create the file.
func (s *Store) Persist(doc *Document) error {
	st, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrStoreMissing, s.path)
		}
		return err
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data, st.Mode().Perm(), s.beforeRename)
}

// Seed installs defaults when the file does not exist yet. It reports
// whether anything was written. An existing file is never touched.
func (s *Store) Seed(defaults []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	doc, err := Parse(defaults)
	if err != nil {
		return false, fmt.Errorf("seed %s: %w", s.path, err)
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return false, err
	}

	unlock, err := s.flock(true)
	if err != nil {
		return false, err
	}
	defer unlock()

	if err := writeAtomic(s.path, data, 0o644, nil); err != nil {
		return false, err
	}
	s.log.Info("settings seeded from defaults", logx.String("path", s.path))
	return true, nil
}

func (s *Store) flock(exclusive bool) (func(), error) {
	unlock, err := lockFile(s.path+".lock", exclusive)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, s.path)
		}
		return nil, fmt.Errorf("lock %s: %w", s.path, err)
	}
	return unlock, nil
}

// writeAtomic writes data to a temp file next to path and renames it into
// place. A reader sees either the old file or the new one, never a mix.
func writeAtomic(path string, data []byte, perm fs.FileMode, beforeRename func(string) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if beforeRename != nil {
		if err = beforeRename(tmpName); err != nil {
			return err
		}
	}
	if err = os.Rename(tmpName, path); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
