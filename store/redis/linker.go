package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/authkit/store"
)

// Linker implements store.AccountLinker on Redis: a per-user hash for the
// forward map and one string key per identity for the reverse index.
type Linker struct {
	client *redis.Client
	prefix string
}

// NewLinker creates a Redis account linker. prefix namespaces all keys.
func NewLinker(client *redis.Client, prefix string) *Linker {
	if prefix == "" {
		prefix = "authkit"
	}
	return &Linker{client: client, prefix: prefix}
}

func (l *Linker) userKey(appUserID string) string {
	return fmt.Sprintf("%s:links:user:%s", l.prefix, appUserID)
}

func (l *Linker) refKey(provider, providerID string) string {
	return fmt.Sprintf("%s:links:ref:%s:%s", l.prefix, provider, providerID)
}

func (l *Linker) Link(ctx context.Context, appUserID, provider, providerID string) error {
	// Clean up entries the upsert supersedes before writing the new pair.
	old, err := l.client.HGet(ctx, l.userKey(appUserID), provider).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	owner, err := l.client.Get(ctx, l.refKey(provider, providerID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := l.client.TxPipeline()
	if old != "" && old != providerID {
		pipe.Del(ctx, l.refKey(provider, old))
	}
	if owner != "" && owner != appUserID {
		pipe.HDel(ctx, l.userKey(owner), provider)
	}
	pipe.HSet(ctx, l.userKey(appUserID), provider, providerID)
	pipe.Set(ctx, l.refKey(provider, providerID), appUserID, 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (l *Linker) Unlink(ctx context.Context, appUserID, provider string) (bool, error) {
	providerID, err := l.client.HGet(ctx, l.userKey(appUserID), provider).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	pipe := l.client.TxPipeline()
	pipe.HDel(ctx, l.userKey(appUserID), provider)
	pipe.Del(ctx, l.refKey(provider, providerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	// A hash with no fields disappears from Redis by itself, so the
	// "no empty residue" rule holds without extra work.
	return true, nil
}

func (l *Linker) FindByProvider(ctx context.Context, provider, providerID string) (string, error) {
	owner, err := l.client.Get(ctx, l.refKey(provider, providerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

func (l *Linker) LinkedAccounts(ctx context.Context, appUserID string) (map[string]string, error) {
	links, err := l.client.HGetAll(ctx, l.userKey(appUserID)).Result()
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = map[string]string{}
	}
	return links, nil
}

func (l *Linker) IsLinked(ctx context.Context, appUserID, provider string) (bool, error) {
	ok, err := l.client.HExists(ctx, l.userKey(appUserID), provider).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

var _ store.AccountLinker = (*Linker)(nil)
