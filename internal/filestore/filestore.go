// Package filestore keeps the whole dataset as one pretty-printed JSON blob on disk.
//
// It is the durable fallback: always available, written before the remote store on
// every bulk replace. Every write goes through a single lock and lands with
// write-temp-then-rename, so a concurrent Load sees either the old blob or the new one.
package filestore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/models"
)

// Store is the file-backed dataset store.
type Store struct {
	fs   afero.Fs
	path string
	log  zerolog.Logger
	mu   sync.RWMutex

	jmu     sync.Mutex
	pending Pending
}

// Open prepares the store at path on fsys. When no blob exists yet the empty dataset is
// written first, so Load never reports "not found" afterwards.
func Open(fsys afero.Fs, path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		fs:   fsys,
		path: filepath.Clean(path),
		log:  logger.With().Str("component", "filestore").Str("path", path).Logger(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureBaseline(); err != nil {
		return nil, err
	}
	s.loadPending()
	return s, nil
}

// Path returns the location of the blob.
func (s *Store) Path() string { return s.path }

// Load reads and parses the blob. A blob that is not a well-formed dataset yields a
// read_failure error; callers decide whether to degrade to an empty dataset.
func (s *Store) Load() (models.Dataset, error) {
	s.mu.RLock()
	data, err := afero.ReadFile(s.fs, s.path)
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		// Removed behind our back; restore the baseline under the write lock.
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.ensureBaseline(); err != nil {
			return models.Dataset{}, err
		}
		return s.read()
	}
	if err != nil {
		return models.Dataset{}, apperr.New(apperr.KindReadFailure, "reading "+s.path, err)
	}
	return decode(s.path, data)
}

// Save replaces the whole blob with ds.
func (s *Store) Save(ds models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ds)
}

// Update runs a read-modify-write cycle under the writer lock. fn receives the current
// dataset and the result is saved unless fn fails. An unreadable blob is moved aside and
// fn starts from the empty dataset.
func (s *Store) Update(fn func(ds *models.Dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, err := s.read()
	if err != nil {
		s.log.Error().Err(err).Msg("unreadable data file, starting update from an empty dataset")
		s.quarantine()
		ds = models.EmptyDataset()
	}
	if err := fn(&ds); err != nil {
		return err
	}
	return s.write(ds)
}

func (s *Store) ensureBaseline() error {
	_, err := s.fs.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return apperr.New(apperr.KindReadFailure, "checking "+s.path, err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return apperr.New(apperr.KindWriteFailure, "creating data directory", err)
	}
	s.log.Info().Msg("no data file found, initializing empty dataset")
	return s.write(models.EmptyDataset())
}

func (s *Store) read() (models.Dataset, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return models.Dataset{}, apperr.New(apperr.KindReadFailure, "reading "+s.path, err)
	}
	return decode(s.path, data)
}

func decode(path string, data []byte) (models.Dataset, error) {
	ds, err := models.DecodeDataset(data)
	if err != nil {
		return models.Dataset{}, apperr.New(apperr.KindReadFailure, path+" is not a well-formed dataset", err)
	}
	return ds, nil
}

// write must be called with mu held.
func (s *Store) write(ds models.Dataset) error {
	ds.Normalize()
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return apperr.New(apperr.KindWriteFailure, "encoding dataset", err)
	}
	return s.writeFile(s.path, data)
}

// writeFile lands data at path through a temp file in the same directory and a rename.
func (s *Store) writeFile(path string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperr.New(apperr.KindWriteFailure, "creating temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		cleanup()
		return apperr.New(apperr.KindWriteFailure, "writing "+tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return apperr.New(apperr.KindWriteFailure, "syncing "+tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return apperr.New(apperr.KindWriteFailure, "closing "+tmpName, err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return apperr.New(apperr.KindWriteFailure, "replacing "+path, err)
	}
	if err := s.fs.Chmod(path, 0o644); err != nil {
		s.log.Debug().Err(err).Str("file", path).Msg("could not set file mode")
	}
	return nil
}

// quarantine moves an unparsable blob aside so a following write does not destroy it.
// Must be called with mu held.
func (s *Store) quarantine() {
	dst := s.path + ".corrupt-" + time.Now().UTC().Format("20060102T150405")
	if err := s.fs.Rename(s.path, dst); err != nil {
		s.log.Error().Err(err).Msg("could not move corrupt data file aside")
		return
	}
	s.log.Warn().Str("backup", dst).Msg("corrupt data file moved aside")
}
