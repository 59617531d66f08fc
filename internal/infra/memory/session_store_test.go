package memory

import (
	"errors"
	"testing"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore[*int]()
	builds := 0
	create := func() (*int, error) {
		builds++
		v := builds
		return &v, nil
	}

	first, err := store.GetOrCreate("quiz-1", create)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	second, _ := store.GetOrCreate("quiz-1", create)
	if first != second || builds != 1 {
		t.Fatalf("expected shared value, builds=%d", builds)
	}

	if store.DeleteIf("quiz-1", func(*int) bool { return false }) {
		t.Fatalf("expected busy value to stay")
	}
	if !store.DeleteIf("quiz-1", func(*int) bool { return true }) {
		t.Fatalf("expected idle value removed")
	}
	if _, ok := store.Get("quiz-1"); ok {
		t.Fatalf("expected value gone")
	}
}

func TestSessionStoreCreateError(t *testing.T) {
	store := NewSessionStore[string]()
	boom := errors.New("boom")
	if _, err := store.GetOrCreate("quiz-1", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected create error, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected nothing registered")
	}
}

func TestSessionStoreKeys(t *testing.T) {
	store := NewSessionStore[int]()
	for i, k := range []string{"a", "b"} {
		v := i
		_, _ = store.GetOrCreate(k, func() (int, error) { return v, nil })
	}
	keys := store.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
