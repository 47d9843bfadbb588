package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

const profileKeyPrefix = "passport:profile:"

// RedisStore keeps each profile as a JSON string value.
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, wallet string) (*model.Profile, error) {
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	doc, err := s.rdb.Get(ctx, profileKeyPrefix+w).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get profile: %w", err)
	}
	return decode(doc)
}

func (s *RedisStore) Put(ctx context.Context, p *model.Profile) error {
	w, doc, err := encode(p)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, profileKeyPrefix+w, doc, 0).Err(); err != nil {
		return fmt.Errorf("redis put profile: %w", err)
	}
	return nil
}
