// Package session tracks per-conversation activation, model selection and
// the bound conversation memory.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/coopco/molebot/internal/content"
)

// State is the lifecycle state of a one-to-one conversation.
type State int

const (
	Dormant State = iota
	AwaitingActivation
	Active
)

func (s State) String() string {
	switch s {
	case AwaitingActivation:
		return "awaiting_activation"
	case Active:
		return "active"
	default:
		return "dormant"
	}
}

// ModelKey selects one of the configured backend models.
type ModelKey string

const (
	ModelFast  ModelKey = "FAST"
	ModelSmart ModelKey = "SMART"
)

// Valid reports whether k is a known model key.
func (k ModelKey) Valid() bool { return k == ModelFast || k == ModelSmart }

// MediaHistoryLimit is the number of text-only turns kept after a turn
// that carried binary content.
const MediaHistoryLimit = 3

// Memory is the conversation handle bound to a session.
type Memory interface {
	Send(ctx context.Context, payload content.Payload) (string, error)
	History() []content.Turn
}

// MemoryFactory creates a memory handle for model seeded with history.
type MemoryFactory func(model ModelKey, history []content.Turn) Memory

// Session is a point-in-time snapshot of a conversation's state.
type Session struct {
	Key       string
	State     State
	Model     ModelKey
	HasMemory bool
	UpdatedAt time.Time
}

type entry struct {
	statusSet bool
	active    bool
	model     ModelKey
	memory    Memory
	updatedAt time.Time
}

func (e *entry) snapshot(key string) Session {
	s := Session{Key: key, Model: e.model, HasMemory: e.memory != nil, UpdatedAt: e.updatedAt}
	switch {
	case e.statusSet && e.active:
		s.State = Active
	case e.statusSet:
		s.State = AwaitingActivation
	}
	return s
}

// Store holds sessions keyed by conversation. Safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	entries      map[string]*entry
	defaultModel ModelKey
	factory      MemoryFactory
	now          func() time.Time
}

// NewStore creates a Store. New sessions start on defaultModel.
func NewStore(defaultModel ModelKey, factory MemoryFactory) *Store {
	if !defaultModel.Valid() {
		defaultModel = ModelSmart
	}
	return &Store{
		entries:      make(map[string]*entry),
		defaultModel: defaultModel,
		factory:      factory,
		now:          time.Now,
	}
}

// DefaultModel returns the model key new sessions start on.
func (s *Store) DefaultModel() ModelKey { return s.defaultModel }

// getOrCreate must be called with s.mu held.
func (s *Store) getOrCreate(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{model: s.defaultModel}
		s.entries[key] = e
	}
	e.updatedAt = s.now()
	return e
}

// Get returns the session for key, if one exists.
func (s *Store) Get(key string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Session{Key: key, Model: s.defaultModel}, false
	}
	return e.snapshot(key), true
}

// SetActive sets the activation flag, creating the session if needed.
func (s *Store) SetActive(key string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.statusSet = true
	e.active = active
}

// Deactivate clears the activation flag and discards memory. It reports
// whether any memory was discarded, so repeating it is a no-op.
func (s *Store) Deactivate(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.statusSet = true
	e.active = false
	had := e.memory != nil
	e.memory = nil
	return had
}

// SelectModel switches the session's model. Memory is always discarded.
func (s *Store) SelectModel(key string, model ModelKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.model = model
	e.memory = nil
}

// ResetMemory discards memory and keeps activation and model.
func (s *Store) ResetMemory(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.memory == nil {
		return false
	}
	e.memory = nil
	e.updatedAt = s.now()
	return true
}

// Memory returns the memory handle bound to key, creating it for the
// session's current model when absent.
func (s *Store) Memory(key string) (Memory, ModelKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	if e.memory == nil {
		e.memory = s.factory(e.model, nil)
	}
	return e.memory, e.model
}

// NoteMediaTurnCompleted replaces the memory with a fresh handle seeded
// from the last MediaHistoryLimit text-only turns of snapshot.
func (s *Store) NoteMediaTurnCompleted(key string, snapshot []content.Turn) {
	kept := PruneTextOnly(snapshot, MediaHistoryLimit)

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.memory = s.factory(e.model, kept)
}

// Len returns the number of known sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CountActive returns the number of sessions with activation on.
func (s *Store) CountActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.statusSet && e.active {
			n++
		}
	}
	return n
}

// PruneTextOnly returns the last limit turns of history whose parts are all text.
func PruneTextOnly(history []content.Turn, limit int) []content.Turn {
	var out []content.Turn
	for _, t := range history {
		if len(t.Parts) > 0 && t.TextOnly() {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
