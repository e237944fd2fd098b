package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sitesync/porter/internal/dedup"
	"github.com/sitesync/porter/internal/logger"
	"github.com/sitesync/porter/internal/models"
)

type fakeAttachmentStore struct {
	nextID  int64
	created []models.Attachment
	err     error
}

func (s *fakeAttachmentStore) CreateAttachment(_ context.Context, attachment *models.Attachment) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.nextID++
	attachment.ID = s.nextID
	s.created = append(s.created, *attachment)
	return s.nextID, nil
}

func newTestRehydrator(t *testing.T) (*Rehydrator, string) {
	t.Helper()
	dir := t.TempDir()
	library, err := NewLibrary(dir, "https://dest.example/wp-content/uploads")
	if err != nil {
		t.Fatalf("NewLibrary() error: %v", err)
	}
	fetcher := NewFetcher(5*time.Second, 1<<20, false)
	return NewRehydrator(fetcher, library, nil, logger.NewNopLogger()), dir
}

func TestRehydrate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/uploads/photo.jpg" {
			w.Write([]byte("jpeg-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	rehydrator, dir := newTestRehydrator(t)
	store := &fakeAttachmentStore{}

	refs := map[string]models.MediaReference{
		server.URL + "/uploads/photo.jpg": {
			URL:  server.URL + "/uploads/photo.jpg",
			Type: models.LocationContent,
		},
	}
	translations := rehydrator.Rehydrate(context.Background(), store, server.URL, refs)

	translation := translations[server.URL+"/uploads/photo.jpg"]
	if translation.Failed() {
		t.Fatalf("translation failed: %s", translation.Err)
	}
	if translation.AttachmentID != 1 {
		t.Errorf("AttachmentID = %d, want 1", translation.AttachmentID)
	}
	if !strings.HasPrefix(translation.NewURL, "https://dest.example/wp-content/uploads/") {
		t.Errorf("NewURL = %q, want destination library prefix", translation.NewURL)
	}
	if !strings.HasSuffix(translation.NewURL, "-photo.jpg") {
		t.Errorf("NewURL = %q, want original file name suffix", translation.NewURL)
	}

	if len(store.created) != 1 {
		t.Fatalf("created %d attachments, want 1", len(store.created))
	}
	stored, err := os.ReadFile(store.created[0].FilePath)
	if err != nil {
		t.Fatalf("reading sideloaded file: %v", err)
	}
	if string(stored) != "jpeg-bytes" {
		t.Errorf("sideloaded content = %q", stored)
	}
	if filepath.Dir(store.created[0].FilePath) != dir {
		t.Errorf("file stored outside library dir: %s", store.created[0].FilePath)
	}
	if store.created[0].Title != "photo" {
		t.Errorf("attachment title = %q, want %q", store.created[0].Title, "photo")
	}
}

func TestRehydrate_ResolvesRelativeAgainstExportSite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/wp-content/uploads/rel.png" {
			w.Write([]byte("png-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	rehydrator, _ := newTestRehydrator(t)
	store := &fakeAttachmentStore{}

	refs := map[string]models.MediaReference{
		"/wp-content/uploads/rel.png": {
			URL:  "/wp-content/uploads/rel.png",
			Type: models.LocationContent,
		},
	}
	translations := rehydrator.Rehydrate(context.Background(), store, server.URL, refs)

	if translation := translations["/wp-content/uploads/rel.png"]; translation.Failed() {
		t.Fatalf("translation failed: %s", translation.Err)
	}
}

func TestRehydrate_FailuresAreIsolated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/good.jpg" {
			w.Write([]byte("ok"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	rehydrator, _ := newTestRehydrator(t)
	store := &fakeAttachmentStore{}

	refs := map[string]models.MediaReference{
		server.URL + "/good.jpg":    {URL: server.URL + "/good.jpg", Type: models.LocationContent},
		server.URL + "/missing.jpg": {URL: server.URL + "/missing.jpg", Type: models.LocationContent},
	}
	translations := rehydrator.Rehydrate(context.Background(), store, server.URL, refs)

	if translation := translations[server.URL+"/good.jpg"]; translation.Failed() {
		t.Errorf("good reference failed: %s", translation.Err)
	}
	missing := translations[server.URL+"/missing.jpg"]
	if !missing.Failed() {
		t.Error("missing reference should fail")
	}
	if !strings.Contains(missing.Err, "404") {
		t.Errorf("error should name the status: %q", missing.Err)
	}
}

func TestRehydrate_RelativeWithoutBaseFails(t *testing.T) {
	rehydrator, _ := newTestRehydrator(t)
	store := &fakeAttachmentStore{}

	refs := map[string]models.MediaReference{
		"/uploads/orphan.jpg": {URL: "/uploads/orphan.jpg", Type: models.LocationContent},
	}
	translations := rehydrator.Rehydrate(context.Background(), store, "", refs)

	if translation := translations["/uploads/orphan.jpg"]; !translation.Failed() {
		t.Error("relative reference without export site should fail")
	}
}

func TestRehydrate_StoreErrorCleansUpFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer server.Close()

	rehydrator, dir := newTestRehydrator(t)
	store := &fakeAttachmentStore{err: errors.New("insert failed")}

	refs := map[string]models.MediaReference{
		server.URL + "/x.jpg": {URL: server.URL + "/x.jpg", Type: models.LocationContent},
	}
	translations := rehydrator.Rehydrate(context.Background(), store, server.URL, refs)

	if translation := translations[server.URL+"/x.jpg"]; !translation.Failed() {
		t.Fatal("translation should fail when attachment insert fails")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading library dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("library should be empty after failed insert, found %d files", len(entries))
	}
}

func TestRehydrate_CachesOnlyThroughRemember(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.jpg" {
			w.Write([]byte("ok"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	tracker := dedup.NewTracker(client, time.Hour, logger.NewNopLogger())

	library, err := NewLibrary(t.TempDir(), "https://dest.example/wp-content/uploads")
	if err != nil {
		t.Fatalf("NewLibrary() error: %v", err)
	}
	rehydrator := NewRehydrator(NewFetcher(5*time.Second, 1<<20, false), library, tracker, logger.NewNopLogger())
	store := &fakeAttachmentStore{}

	okURL := server.URL + "/ok.jpg"
	badURL := server.URL + "/gone.jpg"
	refs := map[string]models.MediaReference{
		okURL:  {URL: okURL, Type: models.LocationContent},
		badURL: {URL: badURL, Type: models.LocationContent},
	}
	translations := rehydrator.Rehydrate(context.Background(), store, server.URL, refs)

	// Rehydrate runs inside the caller's transaction; nothing may be cached
	// until that transaction commits
	if _, ok := tracker.Lookup(context.Background(), okURL); ok {
		t.Fatal("translation cached before Remember")
	}

	rehydrator.Remember(context.Background(), translations)

	cached, ok := tracker.Lookup(context.Background(), okURL)
	if !ok {
		t.Fatal("successful translation not cached by Remember")
	}
	if cached.AttachmentID != translations[okURL].AttachmentID {
		t.Errorf("cached AttachmentID = %d, want %d", cached.AttachmentID, translations[okURL].AttachmentID)
	}
	if _, ok := tracker.Lookup(context.Background(), badURL); ok {
		t.Error("failed translation must never be cached")
	}
}

func TestFetchToTemp_SizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	fetcher := NewFetcher(5*time.Second, 1024, false)
	if _, err := fetcher.FetchToTemp(context.Background(), server.URL+"/big.jpg"); err == nil {
		t.Fatal("expected size limit error")
	}
}
