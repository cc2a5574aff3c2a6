package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/core"
)

func TestBuildBackend_DefaultMemory(t *testing.T) {
	b, err := BuildBackend(context.Background(), "", Options{})
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if _, ok := b.(*MemoryBackend); !ok {
		t.Fatalf("got %T want *MemoryBackend", b)
	}
}

func TestBuildBackend_RedisNeedsAddr(t *testing.T) {
	if _, err := BuildBackend(context.Background(), "redis", Options{}); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("got %v want ErrConfiguration", err)
	}
	b, err := BuildBackend(context.Background(), "redis", Options{RedisAddr: "127.0.0.1:0", Region: "r"})
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	rb, ok := b.(*RedisBackend)
	if !ok {
		t.Fatalf("got %T want *RedisBackend", b)
	}
	_ = rb.Close()
}

func TestBuildBackend_Dynamo(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	if _, err := BuildBackend(context.Background(), "dynamodb", Options{}); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("got %v want ErrConfiguration", err)
	}
	b, err := BuildBackend(context.Background(), "dynamodb", Options{Region: "eu-west-1", DynamoEndpoint: "http://127.0.0.1:8000"})
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if _, ok := b.(*DynamoBackend); !ok {
		t.Fatalf("got %T want *DynamoBackend", b)
	}
}

func TestBuildBackend_UnknownAdapter(t *testing.T) {
	if _, err := BuildBackend(context.Background(), "does-not-exist", Options{}); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("got %v want ErrConfiguration", err)
	}
}
