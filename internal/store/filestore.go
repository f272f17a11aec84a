// Package store implements the file-backed entity store for drift entities.
// Entities are partitioned into one JSON file per (status, category) pair,
// loaded into a single in-memory map, and written back with checksums,
// rotating backups, and a debounced autosave.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
	"github.com/mehmetkoksal-w/driftwatch/internal/fsutil"
)

// FormatVersion is written into every partition file envelope.
const FormatVersion = "2.0"

const (
	backupDirName = ".backups"
	lockFileName  = ".lock"
)

// Envelope is the on-disk shape of one (status, category) partition file.
type Envelope[T any] struct {
	Version     string       `json:"version"`
	Status      drift.Status `json:"status"`
	Category    string       `json:"category"`
	Entities    []T          `json:"entities"`
	LastUpdated time.Time    `json:"lastUpdated"`
	Checksum    string       `json:"checksum"`
}

// Options configures a Store.
type Options[T any] struct {
	// Dir is the family directory, e.g. <project>/.drift/patterns.
	Dir string
	// Transitions is the adjacency table governing status moves.
	Transitions drift.TransitionTable
	// FileBase overrides the category as the partition file base name.
	// Contracts keep all categories in one contracts.json per status.
	FileBase string
	// Backups is how many timestamped backups to retain per file.
	Backups int
	// Debounce is the autosave delay after a mutation. Zero disables
	// autosave; mutations then persist on Flush or Close.
	Debounce time.Duration
	// Accessors expose family-specific fields to the query engine.
	Accessors Accessors[T]
}

// Store holds one entity family in memory and persists it under Dir.
// It is safe for concurrent use within one process; cross-process access
// is fenced by an advisory file lock taken at Load.
type Store[T drift.Record[T]] struct {
	opts Options[T]

	mu        sync.Mutex
	entities  map[string]T
	dirty     bool
	loaded    bool
	closed    bool
	timer     *time.Timer
	observers []Observer
	flk       *flock.Flock
}

// New creates a store for one entity family. Call Load before use.
func New[T drift.Record[T]](opts Options[T]) *Store[T] {
	if opts.Backups <= 0 {
		opts.Backups = 5
	}
	return &Store[T]{
		opts:     opts,
		entities: make(map[string]T),
	}
}

// Tune overrides backup retention and the autosave debounce. It must
// be called before Load.
func (s *Store[T]) Tune(backups int, debounce time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if backups > 0 {
		s.opts.Backups = backups
	}
	if debounce >= 0 {
		s.opts.Debounce = debounce
	}
}

// Load acquires the store lock and reads every (status, category) partition
// file under Dir into the in-memory map. It must be called exactly once
// before any other operation.
func (s *Store[T]) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return fmt.Errorf("store %s: already loaded", s.opts.Dir)
	}
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	flk := flock.New(filepath.Join(s.opts.Dir, lockFileName))
	locked, err := flk.TryLock()
	if err != nil {
		return fmt.Errorf("lock store dir %s: %w", s.opts.Dir, err)
	}
	if !locked {
		return fmt.Errorf("store dir %s is locked by another process", s.opts.Dir)
	}
	s.flk = flk

	for _, status := range s.opts.Transitions.Statuses() {
		statusDir := filepath.Join(s.opts.Dir, string(status))
		entries, err := os.ReadDir(statusDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read status dir %s: %w", statusDir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			path := filepath.Join(statusDir, e.Name())
			if err := s.loadFile(path); err != nil {
				return err
			}
		}
	}
	s.loaded = true
	return nil
}

func (s *Store[T]) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var env Envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if env.Checksum != "" {
		raw, err := json.Marshal(env.Entities)
		if err == nil && fsutil.HashBytes(raw) != env.Checksum {
			// Tamper/drift detection only. The file still loads; observers
			// decide whether a stale checksum is worth acting on.
			s.emitLocked(Event{Type: EventError, Path: path,
				Err: fmt.Errorf("checksum mismatch in %s", path)})
		}
	}
	for _, ent := range env.Entities {
		s.entities[ent.Key()] = ent
	}
	s.emitLocked(Event{Type: EventFileLoaded, Path: path})
	return nil
}

// Close flushes pending changes, stops the autosave timer, and releases the
// advisory lock. The store cannot be used afterwards.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	var err error
	if s.dirty {
		err = s.saveLocked()
	}
	if s.flk != nil {
		if uerr := s.flk.Unlock(); err == nil {
			err = uerr
		}
		s.flk = nil
	}
	s.mu.Unlock()
	return err
}

func (s *Store[T]) ensureLoaded() error {
	if !s.loaded || s.closed {
		return drift.ErrNotInitialized
	}
	return nil
}

// Lookup returns a copy of the entity, reporting whether it exists.
func (s *Store[T]) Lookup(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if s.ensureLoaded() != nil {
		return zero, false
	}
	ent, ok := s.entities[id]
	if !ok {
		return zero, false
	}
	return ent.Clone(), true
}

// Get returns a copy of the entity or ErrNotFound.
func (s *Store[T]) Get(id string) (T, error) {
	ent, ok := s.Lookup(id)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w", id, drift.ErrNotFound)
	}
	return ent, nil
}

// Has reports whether an entity with the given id exists.
func (s *Store[T]) Has(id string) bool {
	_, ok := s.Lookup(id)
	return ok
}

// All returns copies of every entity, in no particular order.
func (s *Store[T]) All() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensureLoaded() != nil {
		return nil
	}
	out := make([]T, 0, len(s.entities))
	for _, ent := range s.entities {
		out = append(out, ent.Clone())
	}
	return out
}

// Count returns the number of entities in the store.
func (s *Store[T]) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return 0, err
	}
	return len(s.entities), nil
}

// Add inserts a new entity. It fails with ErrAlreadyExists on id collision.
func (s *Store[T]) Add(ent T) error {
	s.mu.Lock()
	if err := s.ensureLoaded(); err != nil {
		s.mu.Unlock()
		return err
	}
	id := ent.Key()
	if _, exists := s.entities[id]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", id, drift.ErrAlreadyExists)
	}
	s.entities[id] = ent.Clone()
	s.markDirtyLocked()
	obs := s.observersLocked()
	s.mu.Unlock()

	notify(obs, Event{Type: EventCreated, ID: id})
	return nil
}

// Update applies mutate to the stored entity and returns the result.
// Status changes are not applied here; they must go through Transition,
// so the adjacency table cannot be bypassed.
func (s *Store[T]) Update(id string, mutate func(T)) (T, error) {
	var zero T
	s.mu.Lock()
	if err := s.ensureLoaded(); err != nil {
		s.mu.Unlock()
		return zero, err
	}
	ent, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return zero, fmt.Errorf("%s: %w", id, drift.ErrNotFound)
	}
	status, _ := ent.Partition()
	mutate(ent)
	ent.SetStatus(status, time.Now().UTC())
	s.markDirtyLocked()
	obs := s.observersLocked()
	out := ent.Clone()
	s.mu.Unlock()

	notify(obs, Event{Type: EventUpdated, ID: id})
	return out, nil
}

// Delete removes an entity, reporting whether it existed.
func (s *Store[T]) Delete(id string) bool {
	s.mu.Lock()
	if s.ensureLoaded() != nil {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.entities[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.entities, id)
	s.markDirtyLocked()
	obs := s.observersLocked()
	s.mu.Unlock()

	notify(obs, Event{Type: EventDeleted, ID: id})
	return true
}

// Transition moves an entity to a new status if the adjacency table allows
// it, refreshing lastSeen. It fails with ErrNotFound for unknown ids and
// InvalidTransitionError for moves the table forbids.
func (s *Store[T]) Transition(id string, to drift.Status) (T, error) {
	var zero T
	s.mu.Lock()
	if err := s.ensureLoaded(); err != nil {
		s.mu.Unlock()
		return zero, err
	}
	ent, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return zero, fmt.Errorf("%s: %w", id, drift.ErrNotFound)
	}
	from, _ := ent.Partition()
	if !s.opts.Transitions.Allows(from, to) {
		s.mu.Unlock()
		return zero, &drift.InvalidTransitionError{From: from, To: to}
	}
	ent.SetStatus(to, time.Now().UTC())
	s.markDirtyLocked()
	obs := s.observersLocked()
	out := ent.Clone()
	s.mu.Unlock()

	notify(obs, Event{Type: EventTransition, ID: id, From: from, To: to})
	return out, nil
}

// markDirtyLocked marks the store dirty and (re)arms the autosave timer.
// Each mutation pushes the deadline out, so a burst coalesces into one save.
func (s *Store[T]) markDirtyLocked() {
	s.dirty = true
	if s.opts.Debounce <= 0 {
		return
	}
	if s.timer != nil {
		s.timer.Reset(s.opts.Debounce)
		return
	}
	s.timer = time.AfterFunc(s.opts.Debounce, func() {
		if err := s.Flush(); err != nil {
			s.mu.Lock()
			obs := s.observersLocked()
			s.mu.Unlock()
			notify(obs, Event{Type: EventError, Err: err})
		}
	})
}

// Flush writes all pending changes to disk immediately, bypassing the
// autosave deadline.
func (s *Store[T]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	if !s.dirty {
		return nil
	}
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// saveLocked re-partitions the entity map by current status and rewrites
// exactly the files whose bucket is non-empty, deleting files whose bucket
// became empty. Each overwritten file is backed up first.
func (s *Store[T]) saveLocked() error {
	type bucketKey struct {
		status drift.Status
		base   string
	}
	buckets := make(map[bucketKey][]T)
	for _, ent := range s.entities {
		status, category := ent.Partition()
		base := s.opts.FileBase
		if base == "" {
			base = string(category)
		}
		k := bucketKey{status, base}
		buckets[k] = append(buckets[k], ent)
	}

	written := make(map[string]bool)
	for k, ents := range buckets {
		path := filepath.Join(s.opts.Dir, string(k.status), k.base+".json")
		// One backup pool per partition file. A shared pool would let a
		// burst of saves to one status evict every other status's backups.
		backupDir := filepath.Join(s.opts.Dir, backupDirName, string(k.status))
		ents = sortByKey(ents)
		raw, err := json.Marshal(ents)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		env := Envelope[T]{
			Version:     FormatVersion,
			Status:      k.status,
			Category:    k.base,
			Entities:    ents,
			LastUpdated: time.Now().UTC(),
			Checksum:    fsutil.HashBytes(raw),
		}
		data, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		if err := fsutil.BackupFile(path, backupDir, s.opts.Backups); err != nil {
			return fmt.Errorf("backup %s: %w", path, err)
		}
		if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		written[path] = true
		s.emitLocked(Event{Type: EventFileSaved, Path: path})
	}

	// Remove partition files whose bucket emptied out.
	for _, status := range s.opts.Transitions.Statuses() {
		statusDir := filepath.Join(s.opts.Dir, string(status))
		entries, err := os.ReadDir(statusDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			path := filepath.Join(statusDir, e.Name())
			if !written[path] {
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("remove empty partition %s: %w", path, err)
				}
			}
		}
	}
	return nil
}
