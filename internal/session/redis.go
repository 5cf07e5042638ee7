package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stupiduntilnot/streamchat/internal/control"
)

// RedisStore keeps transcripts as JSON blobs in Redis.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store over client. A zero ttl keeps sessions until
// they are cleared; a positive ttl is refreshed on every Save.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, userID int64) (Transcript, bool, error) {
	data, err := s.client.Get(ctx, sessionKey(s.prefix, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, control.Store("session.load", err)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, false, control.Store("session.load", err)
	}
	return t, true, nil
}

func (s *RedisStore) Save(ctx context.Context, userID int64, t Transcript) error {
	data, err := Encode(t)
	if err != nil {
		return control.Store("session.save", err)
	}
	if err := s.client.Set(ctx, sessionKey(s.prefix, userID), data, s.ttl).Err(); err != nil {
		return control.Store("session.save", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionKey(s.prefix, userID)).Err(); err != nil {
		return control.Store("session.clear", err)
	}
	return nil
}
