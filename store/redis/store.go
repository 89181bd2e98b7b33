// Package redis provides Redis-backed implementations of the store
// contracts for deployments that need the credential and link state to
// survive restarts or be shared between instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/store"
)

type tokenRecord struct {
	Tokens   domain.TokenSet `json:"tokens"`
	StoredAt time.Time       `json:"storedAt"`
}

// TokenStore implements store.TokenStore on a Redis client. Entries are
// stored as JSON values under "{prefix}:tokens:{key}" with a set index for
// Size and Clear.
type TokenStore struct {
	client *redis.Client
	prefix string
}

// NewTokenStore creates a Redis token store. prefix namespaces all keys.
func NewTokenStore(client *redis.Client, prefix string) *TokenStore {
	if prefix == "" {
		prefix = "authkit"
	}
	return &TokenStore{client: client, prefix: prefix}
}

func (s *TokenStore) key(key string) string {
	return fmt.Sprintf("%s:tokens:%s", s.prefix, key)
}

func (s *TokenStore) indexKey() string {
	return s.prefix + ":tokens"
}

func (s *TokenStore) Set(ctx context.Context, key string, tokens *domain.TokenSet) error {
	payload, err := json.Marshal(tokenRecord{Tokens: *tokens, StoredAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal token set: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(key), payload, 0)
	pipe.SAdd(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store token set: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, key string) (*domain.TokenSet, error) {
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token set: %w", err)
	}
	var rec tokenRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token set: %w", err)
	}
	return &rec.Tokens, nil
}

func (s *TokenStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *TokenStore) Delete(ctx context.Context, key string) (bool, error) {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(key))
	pipe.SRem(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func (s *TokenStore) IsExpired(ctx context.Context, key string) (bool, error) {
	tokens, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if tokens == nil {
		return true, nil
	}
	return tokens.Expired(time.Now()), nil
}

func (s *TokenStore) Size(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, s.key(key))
	}
	pipe.Del(ctx, s.indexKey())
	_, err = pipe.Exec(ctx)
	return err
}

var _ store.TokenStore = (*TokenStore)(nil)
