/**
 * @description
 * Redis-backed DraftStore. Each user's draft is stored as one JSON snapshot
 * under a prefixed key with the configured TTL, so abandoned drafts expire
 * on the server without a sweeper. Load additionally checks the draft's own
 * CreatedAt age: a snapshot kept alive past the TTL by key churn is still
 * treated as expired.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kashly/transfer-service/internal/domain"
)

// RedisDraftStore implements DraftStore on a shared Redis instance so a
// wizard session survives both page reloads and instance restarts.
type RedisDraftStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisDraftStore creates a store writing under `<prefix>:draft:<user>`.
func NewRedisDraftStore(client redis.UniversalClient, prefix string, ttl time.Duration, now func() time.Time) *RedisDraftStore {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "kashly:transfer"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if now == nil {
		now = time.Now
	}

	return &RedisDraftStore{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
		now:    now,
	}
}

func (s *RedisDraftStore) key(userID uuid.UUID) string {
	return fmt.Sprintf("%s:draft:%s", s.prefix, userID)
}

func (s *RedisDraftStore) Save(ctx context.Context, draft *domain.TransferDraft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, s.key(draft.UserID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (s *RedisDraftStore) Load(ctx context.Context, userID uuid.UUID) (*domain.TransferDraft, error) {
	payload, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var draft domain.TransferDraft
	if err := json.Unmarshal(payload, &draft); err != nil {
		// A corrupt snapshot is unrecoverable; drop it and start fresh.
		log.Printf("level=warn component=draft_store msg=\"discarding unreadable draft\" user_id=%s err=%v", userID, err)
		s.client.Del(ctx, s.key(userID))
		return nil, nil
	}

	if draft.Age(s.now()) > s.ttl {
		s.client.Del(ctx, s.key(userID))
		return nil, nil
	}
	return &draft, nil
}

func (s *RedisDraftStore) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	return nil
}
