// Package playlist holds the shared playlist and the current selection.
//
// The Store is the single source of truth for "which video is current".
// The player controller and the HTTP playlist view both read from it and
// mutate it only through SelectIndex, Advance, AdvanceFrom and Reorder.
package playlist

import (
	"errors"
	"slices"
	"sync"

	"momo-player/internal/models"
)

// ErrEmpty is returned by lookups on a playlist with no entries.
var ErrEmpty = errors.New("playlist is empty")

// ChangeKind tells subscribers what moved.
type ChangeKind int

const (
	// ChangeSelected means a different entry became current; media must reload.
	ChangeSelected ChangeKind = iota
	// ChangeReordered means the order changed. The current entry is the same,
	// its index may differ.
	ChangeReordered
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSelected:
		return "selected"
	case ChangeReordered:
		return "reordered"
	default:
		return "unknown"
	}
}

// Change is delivered to subscribers after the store has been updated.
type Change struct {
	Kind  ChangeKind
	Index int
	Entry models.Video
}

// Store keeps the ordered entries and the selected index.
type Store struct {
	mu        sync.RWMutex
	entries   []models.Video
	index     int
	reorderer Reorderer

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Change)
}

// Option configures a Store.
type Option func(*Store)

// WithReorderer replaces the default Move collaborator.
func WithReorderer(r Reorderer) Option {
	return func(s *Store) { s.reorderer = r }
}

// NewStore creates a store over entries with the first entry selected.
func NewStore(entries []models.Video, opts ...Option) *Store {
	s := &Store{
		entries:   append([]models.Video(nil), entries...),
		reorderer: Move,
		subs:      make(map[int]func(Change)),
	}
	if len(s.entries) == 0 {
		s.index = -1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Entries returns a copy of the current ordering.
func (s *Store) Entries() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Video(nil), s.entries...)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Index returns the selected index, or -1 when the playlist is empty.
func (s *Store) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Current returns the selected entry. ok is false when the playlist is empty.
func (s *Store) Current() (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index < 0 || s.index >= len(s.entries) {
		return models.Video{}, false
	}
	return s.entries[s.index], true
}

// Peek returns up to n entries following the current one, without wrapping.
func (s *Store) Peek(n int) []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index < 0 || n <= 0 {
		return nil
	}
	start := s.index + 1
	end := min(start+n, len(s.entries))
	if start >= end {
		return nil
	}
	return append([]models.Video(nil), s.entries[start:end]...)
}

// IndexOf returns the position of the entry with id, or -1.
func (s *Store) IndexOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOfLocked(id)
}

func (s *Store) indexOfLocked(id string) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// SelectIndex makes entry i current. Out-of-range indexes and re-selecting
// the current entry are no-ops and return false.
func (s *Store) SelectIndex(i int) bool {
	s.mu.Lock()
	if i < 0 || i >= len(s.entries) || i == s.index {
		s.mu.Unlock()
		return false
	}
	s.index = i
	ch := Change{Kind: ChangeSelected, Index: i, Entry: s.entries[i]}
	s.mu.Unlock()

	s.notify(ch)
	return true
}

// SelectID selects the entry with the given id.
func (s *Store) SelectID(id string) bool {
	i := s.IndexOf(id)
	if i < 0 {
		return false
	}
	return s.SelectIndex(i)
}

// Advance selects the next entry. At the last entry it does nothing; there
// is no wraparound.
func (s *Store) Advance() bool {
	return s.advance(func(models.Video) bool { return true })
}

// AdvanceFrom selects the entry after id, but only while id is still the
// current entry. It returns false once the selection has moved elsewhere or
// when id is the last entry.
func (s *Store) AdvanceFrom(id string) bool {
	return s.advance(func(cur models.Video) bool { return cur.ID == id })
}

// advance checks the current entry and moves past it under one lock, so a
// selection made in between is never skipped.
func (s *Store) advance(from func(cur models.Video) bool) bool {
	s.mu.Lock()
	next := s.index + 1
	if s.index < 0 || next >= len(s.entries) || !from(s.entries[s.index]) {
		s.mu.Unlock()
		return false
	}
	s.index = next
	ch := Change{Kind: ChangeSelected, Index: next, Entry: s.entries[next]}
	s.mu.Unlock()

	s.notify(ch)
	return true
}

// Reorder applies a drag result. A missing destination or a drop that the
// reorderer rejects leaves the playlist unchanged. The selection follows the
// selected entry's identity, not its old index.
func (s *Store) Reorder(d Drop) bool {
	if d.Destination == nil {
		return false
	}

	s.mu.Lock()
	next, changed := s.reorderer(s.entries, d.Source, *d.Destination)
	if !changed {
		s.mu.Unlock()
		return false
	}

	var ch Change
	if s.index >= 0 {
		selectedID := s.entries[s.index].ID
		s.entries = next
		if i := s.indexOfLocked(selectedID); i >= 0 {
			s.index = i
		} else if s.index >= len(s.entries) {
			s.index = len(s.entries) - 1
		}
	} else {
		s.entries = next
	}
	if s.index >= 0 {
		ch = Change{Kind: ChangeReordered, Index: s.index, Entry: s.entries[s.index]}
	} else {
		ch = Change{Kind: ChangeReordered, Index: -1}
	}
	s.mu.Unlock()

	s.notify(ch)
	return true
}

// Subscribe registers fn for every change. The returned func removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(ch Change) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Change), 0, len(ids))
	// Registration order.
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}
