package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the registry of tracked sessions keyed by window id. All methods
// are safe for concurrent use and only ever hand out copies.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	nextOrder int

	now      func() time.Time
	onChange func(Event)
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// SetOnChange installs a hook called after every applied mutation. The hook
// runs outside the store lock. It must be set before the store is shared
// between goroutines.
func (s *Store) SetOnChange(fn func(Event)) {
	s.onChange = fn
}

// normalizeID is the key form every operation looks sessions up by.
func normalizeID(windowID string) string {
	return strings.TrimSpace(windowID)
}

func (s *Store) notify(ev Event) {
	if s.onChange != nil {
		s.onChange(ev)
	}
}

// Upsert registers windowID or overwrites its title and message. Either way
// the session ends up unseen.
func (s *Store) Upsert(windowID, title, message string) (Session, error) {
	windowID = normalizeID(windowID)
	if windowID == "" {
		return Session{}, fmt.Errorf("%w: window id is empty", ErrInvalidInput)
	}

	s.mu.Lock()
	now := s.now()
	ev := Event{Type: EventUpdated, WindowID: windowID}
	st, ok := s.sessions[windowID]
	if !ok {
		st = &Session{
			WindowID:     windowID,
			RegisteredAt: now,
			Order:        s.nextOrder,
		}
		s.nextOrder++
		s.sessions[windowID] = st
		ev.Type = EventRegistered
	}
	st.Title = title
	st.Message = message
	st.Unseen = true
	st.UpdatedAt = now
	copy := *st
	s.mu.Unlock()

	s.notify(ev)
	return copy, nil
}

// Remove deletes the session for windowID. Removing an unknown id is a no-op;
// the return value reports whether anything was deleted.
func (s *Store) Remove(windowID string) bool {
	windowID = normalizeID(windowID)
	s.mu.Lock()
	_, ok := s.sessions[windowID]
	delete(s.sessions, windowID)
	s.mu.Unlock()

	if ok {
		s.notify(Event{Type: EventRemoved, WindowID: windowID})
	}
	return ok
}

// MarkSeen clears the unseen flag of windowID and reports whether the
// session exists.
func (s *Store) MarkSeen(windowID string) bool {
	windowID = normalizeID(windowID)
	s.mu.Lock()
	st, ok := s.sessions[windowID]
	changed := ok && st.Unseen
	if ok {
		st.Unseen = false
	}
	s.mu.Unlock()

	if changed {
		s.notify(Event{Type: EventSeen, WindowID: windowID})
	}
	return ok
}

// MarkAllSeen clears every unseen flag and returns how many were cleared.
func (s *Store) MarkAllSeen() int {
	s.mu.Lock()
	cleared := 0
	for _, st := range s.sessions {
		if st.Unseen {
			st.Unseen = false
			cleared++
		}
	}
	s.mu.Unlock()

	if cleared > 0 {
		s.notify(Event{Type: EventSeen})
	}
	return cleared
}

func (s *Store) Get(windowID string) (Session, bool) {
	windowID = normalizeID(windowID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[windowID]
	if !ok {
		return Session{}, false
	}
	return *st, true
}

// Snapshot returns copies of all sessions in registration order.
func (s *Store) Snapshot() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []Session {
	result := make([]Session, 0, len(s.sessions))
	for _, st := range s.sessions {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Order < result[j].Order
	})
	return result
}

func (s *Store) UnseenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, st := range s.sessions {
		if st.Unseen {
			count++
		}
	}
	return count
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RenderModel returns the badge count and entries taken under one lock, so
// the count always matches the entries.
func (s *Store) RenderModel() RenderModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.snapshotLocked()
	badge := 0
	for _, e := range entries {
		if e.Unseen {
			badge++
		}
	}
	return RenderModel{
		BadgeCount: badge,
		Total:      len(entries),
		Entries:    entries,
	}
}
