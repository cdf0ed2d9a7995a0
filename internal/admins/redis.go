package admins

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const redisKeyPrefix = "ngguard:admins:"

type redisStore struct {
	client redis.UniversalClient
}

// NewRedisStore shares admin lists between bot replicas. Values are msgpack encoded.
func NewRedisStore(client redis.UniversalClient) *redisStore {
	return &redisStore{client: client}
}

func chatKey(chatID int64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, chatID)
}

func (s *redisStore) Get(ctx context.Context, chatID int64) ([]Admin, bool, error) {
	data, err := s.client.Get(ctx, chatKey(chatID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.WithMessage(err, "redis get")
	}
	admins, err := decodeAdmins(data)
	if err != nil {
		return nil, false, err
	}
	return admins, true, nil
}

func (s *redisStore) Set(ctx context.Context, chatID int64, admins []Admin, ttl time.Duration) error {
	data, err := encodeAdmins(admins)
	if err != nil {
		return err
	}
	return errors.WithMessage(s.client.Set(ctx, chatKey(chatID), data, ttl).Err(), "redis set")
}

func (s *redisStore) Delete(ctx context.Context, chatID int64) error {
	return errors.WithMessage(s.client.Del(ctx, chatKey(chatID)).Err(), "redis del")
}

func encodeAdmins(admins []Admin) ([]byte, error) {
	data, err := msgpack.Marshal(admins)
	if err != nil {
		return nil, errors.WithMessage(err, "encode admins")
	}
	return data, nil
}

func decodeAdmins(data []byte) ([]Admin, error) {
	var admins []Admin
	if err := msgpack.Unmarshal(data, &admins); err != nil {
		return nil, errors.WithMessage(err, "decode admins")
	}
	return admins, nil
}
