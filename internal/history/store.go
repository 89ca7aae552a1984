// Package history provides the durable, append-only conversation log and the
// reconstruction of protocol-correct message logs from it.
package history

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("history: store closed")

// Store is the durable log. Entries are partitioned by conversation id and
// ordered by SequenceID within a partition.
type Store interface {
	Append(ctx context.Context, conversationID, role, payload string) (int64, error)
	// AppendBatch appends all records or none of them.
	AppendBatch(ctx context.Context, conversationID string, records []Record) ([]int64, error)
	// List returns entries in ascending order. A positive limit keeps the most recent ones.
	List(ctx context.Context, conversationID string, limit int) ([]Entry, error)
	Count(ctx context.Context, conversationID string) (int, error)
	Clear(ctx context.Context, conversationID string) (int, error)
	Close() error
}

// MemoryStore keeps the log in process memory. It is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[string][]Entry
	closed  bool
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Append(ctx context.Context, conversationID, role, payload string) (int64, error) {
	ids, err := s.AppendBatch(ctx, conversationID, []Record{{Role: role, Payload: payload}})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (s *MemoryStore) AppendBatch(ctx context.Context, conversationID string, records []Record) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		s.nextID++
		s.entries[conversationID] = append(s.entries[conversationID], Entry{
			SequenceID:     s.nextID,
			ConversationID: conversationID,
			Role:           r.Role,
			Payload:        r.Payload,
			CreatedAt:      s.now(),
		})
		ids = append(ids, s.nextID)
	}
	return ids, nil
}

func (s *MemoryStore) List(ctx context.Context, conversationID string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	all := s.entries[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Entry, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, conversationID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.entries[conversationID]), nil
}

func (s *MemoryStore) Clear(ctx context.Context, conversationID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := len(s.entries[conversationID])
	delete(s.entries, conversationID)
	return n, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
