package filestore

import (
	"encoding/json"
	"errors"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/models"
)

// Change is a record write that reached the data file but not the remote store.
type Change struct {
	Kind    models.Kind `json:"kind"`
	ID      int64       `json:"id"`
	Deleted bool        `json:"deleted,omitempty"`
	Seq     uint64      `json:"seq"`
}

// Pending lists what the remote store is missing. FullSeq is set when a bulk replace
// reached only the data file: the whole file then has to be pushed, and Changes up to it
// are covered by that push. It is kept next to the blob so a restart does not lose it.
type Pending struct {
	Seq     uint64   `json:"seq"`
	FullSeq uint64   `json:"fullSeq,omitempty"`
	Changes []Change `json:"changes"`
}

// Empty reports whether the remote store is in step with the file writes.
func (p Pending) Empty() bool { return p.FullSeq == 0 && len(p.Changes) == 0 }

// NeedsFullPush reports whether a bulk replace is waiting for the remote store.
func (p Pending) NeedsFullPush() bool { return p.FullSeq != 0 }

func (p Pending) clone() Pending {
	p.Changes = append([]Change(nil), p.Changes...)
	return p
}

// PendingPath returns where the pending changes are kept.
func (s *Store) PendingPath() string { return s.path + ".pending" }

// Pending returns a snapshot of the writes the remote store missed.
func (s *Store) Pending() Pending {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	return s.pending.clone()
}

// Track records that the record of kind with id was written to (or deleted from) the
// data file only. A later change of the same record replaces the earlier entry.
func (s *Store) Track(kind models.Kind, id int64, deleted bool) error {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	s.pending.Seq++
	s.pending.Changes = without(s.pending.Changes, kind, id)
	s.pending.Changes = append(s.pending.Changes, Change{Kind: kind, ID: id, Deleted: deleted, Seq: s.pending.Seq})
	return s.savePending()
}

// MarkFull records that the whole file replaced the dataset without reaching the remote
// store. Tracked changes are dropped since the push carries them.
func (s *Store) MarkFull() error {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	s.pending.Seq++
	s.pending.FullSeq = s.pending.Seq
	s.pending.Changes = nil
	return s.savePending()
}

// Forget drops the entry of one record, after the remote store received a newer write of it.
func (s *Store) Forget(kind models.Kind, id int64) error {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	n := len(s.pending.Changes)
	s.pending.Changes = without(s.pending.Changes, kind, id)
	if len(s.pending.Changes) == n {
		return nil
	}
	return s.savePending()
}

// Acknowledge removes the replayed changes. An entry that was tracked again since the
// snapshot carries a newer Seq and stays.
func (s *Store) Acknowledge(done []Change) error {
	if len(done) == 0 {
		return nil
	}
	s.jmu.Lock()
	defer s.jmu.Unlock()
	acked := make(map[Change]bool, len(done))
	for _, c := range done {
		acked[c] = true
	}
	kept := s.pending.Changes[:0]
	for _, c := range s.pending.Changes {
		if !acked[c] {
			kept = append(kept, c)
		}
	}
	s.pending.Changes = kept
	return s.savePending()
}

// AcknowledgeFull records that the file content as of snapshot p is on the remote store.
func (s *Store) AcknowledgeFull(p Pending) error {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	if s.pending.Empty() {
		return nil
	}
	if s.pending.FullSeq == p.FullSeq {
		s.pending.FullSeq = 0
	}
	kept := s.pending.Changes[:0]
	for _, c := range s.pending.Changes {
		if c.Seq > p.Seq {
			kept = append(kept, c)
		}
	}
	s.pending.Changes = kept
	return s.savePending()
}

func without(changes []Change, kind models.Kind, id int64) []Change {
	out := changes[:0]
	for _, c := range changes {
		if c.Kind != kind || c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// savePending must be called with jmu held. Nothing pending means no file.
func (s *Store) savePending() error {
	path := s.PendingPath()
	if s.pending.Empty() {
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return apperr.New(apperr.KindWriteFailure, "removing "+path, err)
		}
		return nil
	}
	data, err := json.MarshalIndent(s.pending, "", "  ")
	if err != nil {
		return apperr.New(apperr.KindWriteFailure, "encoding pending changes", err)
	}
	return s.writeFile(path, data)
}

// loadPending reads the pending changes left by a previous run. An unreadable file is
// logged and ignored: the remote store keeps its content.
func (s *Store) loadPending() {
	path := s.PendingPath()
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err == nil {
		err = json.Unmarshal(data, &s.pending)
	}
	if err != nil {
		s.log.Error().Err(err).Str("file", path).Msg("pending changes unreadable, ignoring them")
		s.pending = Pending{}
		return
	}
	if !s.pending.Empty() {
		s.log.Info().Int("changes", len(s.pending.Changes)).Bool("full", s.pending.NeedsFullPush()).
			Msg("remote store has writes to catch up")
	}
}
