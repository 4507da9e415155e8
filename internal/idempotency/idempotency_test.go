package idempotency

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{
			name: "valid key",
			key:  "req-2026-08-28-abc123",
		},
		{
			name: "key at max length",
			key:  strings.Repeat("k", MaxKeyLength),
		},
		{
			name:    "empty key",
			key:     "",
			wantErr: ErrInvalidKey,
		},
		{
			name:    "key over max length",
			key:     strings.Repeat("k", MaxKeyLength+1),
			wantErr: ErrKeyTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestHashResponse(t *testing.T) {
	h1 := HashResponse(`{"status":"success"}`)
	h2 := HashResponse(`{"status":"success"}`)
	h3 := HashResponse(`{"status":"error"}`)

	if h1 != h2 {
		t.Error("same body must hash to same value")
	}
	if h1 == h3 {
		t.Error("different bodies must hash to different values")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex characters", len(h1))
	}
}

func TestInMemoryRepository_StoreAndGet(t *testing.T) {
	repo := NewInMemoryRepository()

	rec := &Record{
		Key:                "fav-key-1",
		Method:             "POST",
		Route:              "/api/favorites",
		ResponseBody:       `{"status":"success"}`,
		ResponseHash:       HashResponse(`{"status":"success"}`),
		ResponseStatusCode: 201,
	}
	if err := repo.Store(rec); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	got, err := repo.Get("fav-key-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Route != "/api/favorites" || got.ResponseStatusCode != 201 {
		t.Errorf("Get() = %+v, want stored record", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Store() must stamp CreatedAt when unset")
	}
}

func TestInMemoryRepository_GetMissing(t *testing.T) {
	repo := NewInMemoryRepository()
	if _, err := repo.Get("nope"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}
}

func TestInMemoryRepository_StoreDuplicate(t *testing.T) {
	repo := NewInMemoryRepository()
	rec := &Record{Key: "dup-key", Route: "/api/blocks", ResponseStatusCode: 200}

	if err := repo.Store(rec); err != nil {
		t.Fatalf("first Store() failed: %v", err)
	}
	if err := repo.Store(rec); !errors.Is(err, ErrKeyExists) {
		t.Errorf("second Store() error = %v, want ErrKeyExists", err)
	}
}

func TestInMemoryRepository_StoreInvalidKey(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Store(&Record{Key: ""}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Store() error = %v, want ErrInvalidKey", err)
	}
}

func TestInMemoryRepository_GetReturnsCopy(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Store(&Record{Key: "copy-key", ResponseBody: "original"}); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	got, _ := repo.Get("copy-key")
	got.ResponseBody = "mutated"

	again, _ := repo.Get("copy-key")
	if again.ResponseBody != "original" {
		t.Error("mutating a returned record must not affect the stored one")
	}
}

func TestInMemoryRepository_DeleteOlderThan(t *testing.T) {
	repo := NewInMemoryRepository()

	old := &Record{Key: "old-key", CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &Record{Key: "fresh-key", CreatedAt: time.Now()}
	if err := repo.Store(old); err != nil {
		t.Fatalf("Store(old) failed: %v", err)
	}
	if err := repo.Store(fresh); err != nil {
		t.Fatalf("Store(fresh) failed: %v", err)
	}

	deleted, err := repo.DeleteOlderThan(DefaultExpiry)
	if err != nil {
		t.Fatalf("DeleteOlderThan() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := repo.Get("old-key"); !errors.Is(err, ErrKeyNotFound) {
		t.Error("expired record still retrievable")
	}
	if _, err := repo.Get("fresh-key"); err != nil {
		t.Errorf("fresh record removed: %v", err)
	}
}

func TestCleanupOldKeys(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Store(&Record{Key: "stale", CreatedAt: time.Now().Add(-25 * time.Hour)}); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	deleted, err := CleanupOldKeys(repo, DefaultExpiry)
	if err != nil {
		t.Fatalf("CleanupOldKeys() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

type failingRepo struct{ Repository }

func (failingRepo) DeleteOlderThan(time.Duration) (int64, error) {
	return 0, errors.New("storage down")
}

func TestCleanupOldKeys_Error(t *testing.T) {
	if _, err := CleanupOldKeys(failingRepo{}, DefaultExpiry); err == nil {
		t.Error("CleanupOldKeys() = nil, want error from repository")
	}
}

func TestRunPeriodicCleanup_Stops(t *testing.T) {
	repo := NewInMemoryRepository()
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		RunPeriodicCleanup(repo, time.Hour, DefaultExpiry, stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodicCleanup did not stop")
	}
}
