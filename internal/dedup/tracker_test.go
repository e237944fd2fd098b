package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sitesync/porter/internal/logger"
	"github.com/sitesync/porter/internal/models"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTracker(client, time.Hour, logger.NewNopLogger()), srv
}

func TestTracker_MarkAndLookup(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	sourceURL := "https://source.example/uploads/photo.jpg"
	if _, ok := tracker.Lookup(ctx, sourceURL); ok {
		t.Fatal("lookup before mark should miss")
	}

	translation := models.MediaTranslation{AttachmentID: 42, NewURL: "https://dest.example/uploads/photo.jpg"}
	tracker.Mark(ctx, sourceURL, translation)

	got, ok := tracker.Lookup(ctx, sourceURL)
	if !ok {
		t.Fatal("lookup after mark should hit")
	}
	if got != translation {
		t.Errorf("Lookup() = %+v, want %+v", got, translation)
	}

	if _, ok := tracker.Lookup(ctx, "https://source.example/uploads/other.jpg"); ok {
		t.Error("different URL should miss")
	}
}

func TestTracker_EntriesExpire(t *testing.T) {
	tracker, srv := newTestTracker(t)
	ctx := context.Background()

	sourceURL := "https://source.example/uploads/photo.jpg"
	tracker.Mark(ctx, sourceURL, models.MediaTranslation{AttachmentID: 1, NewURL: "https://dest.example/p.jpg"})

	srv.FastForward(2 * time.Hour)

	if _, ok := tracker.Lookup(ctx, sourceURL); ok {
		t.Error("entry should expire after TTL")
	}
}

func TestTracker_Clear(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	sourceURL := "https://source.example/uploads/photo.jpg"
	tracker.Mark(ctx, sourceURL, models.MediaTranslation{AttachmentID: 1, NewURL: "x"})

	if err := tracker.Clear(ctx, sourceURL); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, ok := tracker.Lookup(ctx, sourceURL); ok {
		t.Error("lookup after clear should miss")
	}
}

func TestTracker_FlushAll(t *testing.T) {
	tracker, srv := newTestTracker(t)
	ctx := context.Background()

	tracker.Mark(ctx, "https://a.example/1.jpg", models.MediaTranslation{AttachmentID: 1, NewURL: "a"})
	tracker.Mark(ctx, "https://a.example/2.jpg", models.MediaTranslation{AttachmentID: 2, NewURL: "b"})
	srv.Set("unrelated:key", "keep")

	if err := tracker.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll() error: %v", err)
	}
	if _, ok := tracker.Lookup(ctx, "https://a.example/1.jpg"); ok {
		t.Error("entries should be gone after flush")
	}
	if !srv.Exists("unrelated:key") {
		t.Error("flush should not touch unrelated keys")
	}
}

func TestTracker_NilTrackerIsInert(t *testing.T) {
	var tracker *Tracker
	ctx := context.Background()

	if _, ok := tracker.Lookup(ctx, "https://a.example/1.jpg"); ok {
		t.Error("nil tracker should always miss")
	}
	tracker.Mark(ctx, "https://a.example/1.jpg", models.MediaTranslation{AttachmentID: 1})
	if err := tracker.Clear(ctx, "https://a.example/1.jpg"); err != nil {
		t.Errorf("Clear() on nil tracker: %v", err)
	}
	if err := tracker.FlushAll(ctx); err != nil {
		t.Errorf("FlushAll() on nil tracker: %v", err)
	}
}
