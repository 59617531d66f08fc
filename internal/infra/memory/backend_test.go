package memory

import (
	"context"
	"errors"
	"testing"

	"eduquest-progress/internal/domain"
)

func TestBackendCopiesValues(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	value := []byte(`{"a":1}`)
	if err := b.Put(ctx, "lesson-progress:1", value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'x'

	got, err := b.Get(ctx, "lesson-progress:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("expected stored copy, got %s", got)
	}

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBackendKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	_ = b.Put(ctx, "lesson-progress:2", []byte("{}"))
	_ = b.Put(ctx, "lesson-progress:1", []byte("{}"))
	_ = b.Put(ctx, "activity-log", []byte("{}"))

	keys, _ := b.Keys(ctx, "lesson-progress:")
	if len(keys) != 2 || keys[0] != "lesson-progress:1" {
		t.Fatalf("expected sorted lesson keys, got %v", keys)
	}
}
