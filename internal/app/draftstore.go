/**
 * @description
 * The draft store contract plus an in-memory implementation. A draft store
 * persists one TransferDraft per user so an interrupted wizard session can
 * resume, and enforces the draft TTL: a snapshot older than the TTL is
 * discarded on load rather than returned.
 *
 * The in-memory store backs unit tests and the degraded mode used when Redis
 * is unreachable at startup.
 */

package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
)

// DraftStore persists wizard drafts keyed by user. Load returns (nil, nil)
// when no live draft exists, including when the stored draft has aged past
// the TTL.
type DraftStore interface {
	Save(ctx context.Context, draft *domain.TransferDraft) error
	Load(ctx context.Context, userID uuid.UUID) (*domain.TransferDraft, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// MemoryDraftStore is a process-local DraftStore.
type MemoryDraftStore struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]*domain.TransferDraft
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryDraftStore creates an in-memory store with the given TTL.
func NewMemoryDraftStore(ttl time.Duration, now func() time.Time) *MemoryDraftStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryDraftStore{
		drafts: make(map[uuid.UUID]*domain.TransferDraft),
		ttl:    ttl,
		now:    now,
	}
}

func (s *MemoryDraftStore) Save(ctx context.Context, draft *domain.TransferDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *draft
	if draft.Recipient != nil {
		recipient := *draft.Recipient
		snapshot.Recipient = &recipient
	}
	s.drafts[draft.UserID] = &snapshot
	return nil
}

func (s *MemoryDraftStore) Load(ctx context.Context, userID uuid.UUID) (*domain.TransferDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[userID]
	if !ok {
		return nil, nil
	}
	if draft.Age(s.now()) > s.ttl {
		delete(s.drafts, userID)
		return nil, nil
	}
	snapshot := *draft
	if draft.Recipient != nil {
		recipient := *draft.Recipient
		snapshot.Recipient = &recipient
	}
	return &snapshot, nil
}

func (s *MemoryDraftStore) Clear(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
	return nil
}
