package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisKeyPrefix = "docstore:"

// RedisStore keeps each collection in one Redis hash, field = id.
type RedisStore struct {
	client *redis.Client
	retrier
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, retrier: newRetrier(logger.Named("redis_store"))}
}

func collectionKey(collection string) string {
	return redisKeyPrefix + collection
}

// Put writes doc under id.
func (s *RedisStore) Put(ctx context.Context, collection, id string, doc Document) error {
	if err := validKey(collection, id); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode document %s/%s: %w", collection, id, err)
	}
	return s.executeWithRetry(ctx, "docstore.redis.put", id, func() error {
		return s.client.HSet(ctx, collectionKey(collection), id, body).Err()
	})
}

// ListAll returns every document of collection ordered by id.
func (s *RedisStore) ListAll(ctx context.Context, collection string) ([]Document, error) {
	var fields map[string]string
	err := s.executeWithRetry(ctx, "docstore.redis.list_all", "", func() error {
		var err error
		fields, err = s.client.HGetAll(ctx, collectionKey(collection)).Result()
		return err
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		var doc Document
		if err := json.Unmarshal([]byte(fields[id]), &doc); err != nil {
			return nil, fmt.Errorf("docstore: decode document %s/%s: %w", collection, id, err)
		}
		docs = append(docs, withID(doc, id))
	}
	return docs, nil
}
