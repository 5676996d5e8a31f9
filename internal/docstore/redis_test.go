package docstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, zap.NewNop()), mr
}

func TestRedisStorePutAndListAll(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "predictions", "b", Document{"result": "Non-cancer"}); err != nil {
		t.Fatalf("put b: %v", err)
	}
	if err := store.Put(ctx, "predictions", "a", Document{"result": "Cancer", "createdAt": "2024-01-01T00:00:00.000Z"}); err != nil {
		t.Fatalf("put a: %v", err)
	}

	if !mr.Exists("docstore:predictions") {
		t.Fatal("expected collection hash to exist")
	}

	docs, err := store.ListAll(ctx, "predictions")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0][IDField] != "a" || docs[1][IDField] != "b" {
		t.Fatalf("expected documents ordered by id, got %+v", docs)
	}
	if docs[0]["createdAt"] != "2024-01-01T00:00:00.000Z" {
		t.Fatalf("unexpected createdAt: %v", docs[0]["createdAt"])
	}
}

func TestRedisStoreListAllMissingCollection(t *testing.T) {
	store, _ := newTestRedisStore(t)

	docs, err := store.ListAll(context.Background(), "predictions")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
}

func TestRedisStoreReportsUnavailableServer(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	if err := store.Put(context.Background(), "predictions", "a", Document{}); err == nil {
		t.Fatal("expected error once the server is gone, got nil")
	}
}
