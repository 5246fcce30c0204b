// Package store keeps the client-side view of conversations and their loaded
// messages. It is the single source of truth for rendering; all mutations are
// serialized, and readers receive copies.
package store

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/RichardoC/chatsync/internal/apierr"
	"github.com/RichardoC/chatsync/internal/models"
)

type entry struct {
	conv     models.Conversation
	messages []models.Message
	loaded   bool
	stale    bool
}

type Store struct {
	mu      sync.RWMutex
	entries map[models.ID]*entry
	order   []models.ID // UpdatedAt descending
}

func New() *Store {
	return &Store{entries: make(map[models.ID]*entry)}
}

// List returns conversations ordered by last update, newest first.
func (s *Store) List() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].conv)
	}
	return out
}

func (s *Store) Get(id models.ID) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return models.Conversation{}, false
	}
	return e.conv, true
}

// Messages returns the transcript in insertion order. It is empty until the
// conversation has been fetched; see Loaded.
func (s *Store) Messages(id models.ID) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return []models.Message{}
	}
	out := make([]models.Message, len(e.messages))
	for i, m := range e.messages {
		m.Sources = slices.Clone(m.Sources)
		out[i] = m
	}
	return out
}

func (s *Store) Loaded(id models.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return ok && e.loaded
}

func (s *Store) Stale(id models.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return ok && e.stale
}

// Upsert inserts or replaces a conversation by id. Loaded messages survive a
// replace.
func (s *Store) Upsert(conv models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[conv.ID]; ok {
		e.conv = conv
	} else {
		s.entries[conv.ID] = &entry{conv: conv}
		s.order = append(s.order, conv.ID)
	}
	s.sortLocked()
}

// AppendMessage adds msg to the end of a known conversation's transcript.
func (s *Store) AppendMessage(id models.ID, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return apierr.NotFoundf("conversation %s not in store", id)
	}
	msg.ConversationID = id
	e.messages = append(e.messages, msg)
	return nil
}

// ReplaceMessages installs a transcript fetched from the server. Local messages
// that are still pending or that failed are kept after the server list, in
// their original order, since the server never has them.
func (s *Store) ReplaceMessages(id models.ID, msgs []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return apierr.NotFoundf("conversation %s not in store", id)
	}

	next := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		m.ConversationID = id
		next = append(next, m)
	}
	for _, m := range e.messages {
		if m.ID.IsLocal() && (m.Status == models.StatusPending || m.Status == models.StatusFailed) {
			next = append(next, m)
		}
	}
	e.messages = next
	e.loaded = true
	e.stale = false
	return nil
}

// UpdateMessage applies fn to the message with msgID. It reports whether the
// message was found.
func (s *Store) UpdateMessage(convID, msgID models.ID, fn func(*models.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[convID]
	if !ok {
		return false
	}
	for i := range e.messages {
		if e.messages[i].ID == msgID {
			fn(&e.messages[i])
			e.messages[i].ConversationID = convID
			return true
		}
	}
	return false
}

// Touch advances a conversation's last-update time and re-sorts the list.
// Timestamps never move backwards.
func (s *Store) Touch(id models.ID, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if at.After(e.conv.UpdatedAt) {
		e.conv.UpdatedAt = at
		s.sortLocked()
	}
	return true
}

func (s *Store) MarkStale(id models.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.stale = true
	}
}

// Remove drops a conversation and its messages. Unknown ids are a no-op.
func (s *Store) Remove(id models.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Retain removes every remote conversation not in keep. Local conversations
// are left alone.
func (s *Store) Retain(keep []models.ID) []models.ID {
	set := make(map[models.ID]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []models.ID
	order := s.order[:0]
	for _, id := range s.order {
		if _, ok := set[id]; !ok && !id.IsLocal() {
			delete(s.entries, id)
			removed = append(removed, id)
			continue
		}
		order = append(order, id)
	}
	s.order = order
	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.entries[s.order[i]].conv, s.entries[s.order[j]].conv
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return b.ID.Less(a.ID)
	})
}
