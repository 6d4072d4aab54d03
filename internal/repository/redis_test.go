package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/atinyakov/LegalLens/internal/models"
)

func setupTestRedis(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisSessionStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestNewRedisSessionStore_BadURL(t *testing.T) {
	if _, err := NewRedisSessionStore("not a url", 0); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewRedisSessionStore_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()
	if _, err := NewRedisSessionStore("redis://"+addr, 0); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestRedis_SaveLoadDelete(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	rec := &models.SessionRecord{
		UID:          "u1",
		Email:        "a@example.com",
		DisplayName:  "Alice",
		IDToken:      "id",
		RefreshToken: "ref",
		ExpiresAt:    time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, "sid-1", rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := s.TTL("legallens:session:sid-1"); ttl != time.Hour {
		t.Errorf("TTL = %v; want 1h", ttl)
	}

	got, err := store.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.UID != rec.UID || got.DisplayName != "Alice" || !got.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Errorf("Load = %+v; want %+v", got, rec)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load after delete = %v; want ErrSessionNotFound", err)
	}
	if err := store.Delete(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Delete = %v; want ErrSessionNotFound", err)
	}
}

func TestRedis_RetentionExpiry(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Save(ctx, "sid-2", &models.SessionRecord{UID: "u2"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.FastForward(2 * time.Hour)

	if _, err := store.Load(ctx, "sid-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected expired session, got %v", err)
	}
}

func TestRedis_CorruptRecord(t *testing.T) {
	store, s := setupTestRedis(t)
	if err := s.Set("legallens:session:bad", "{not json"); err != nil {
		t.Fatal(err)
	}
	_, err := store.Load(context.Background(), "bad")
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}
