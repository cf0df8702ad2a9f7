package assets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/storyreel/storyreel-agent/internal/cloud"
)

func newTestFetcher(t *testing.T, store cloud.ObjectStore) *Fetcher {
	t.Helper()
	return New(Options{
		Dir:     t.TempDir(),
		Store:   store,
		Retries: 2,
		Backoff: time.Millisecond,
	})
}

func TestFetch_HTTPCachesResult(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("jpegdata"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	url := srv.URL + "/photos/sky.JPG"

	p1, err := f.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if filepath.Ext(p1) != ".jpg" {
		t.Errorf("cached path %s should keep the lowercased extension", p1)
	}
	data, _ := os.ReadFile(p1)
	if string(data) != "jpegdata" {
		t.Errorf("cached content = %q", data)
	}

	p2, err := f.Fetch(context.Background(), url)
	if err != nil || p2 != p1 {
		t.Fatalf("second Fetch() = %s, %v", p2, err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	if _, err := f.Fetch(context.Background(), srv.URL+"/a.mp4"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestFetch_GivesUpAfterRetryBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/a.mp4")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Attempts != 3 || hits.Load() != 3 {
		t.Errorf("attempts = %d, hits = %d, want 3", fe.Attempts, hits.Load())
	}
	entries, _ := os.ReadDir(f.dir)
	if len(entries) != 0 {
		t.Errorf("failed download left %d file(s) behind", len(entries))
	}
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.png")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Attempts != 1 {
		t.Fatalf("expected single-attempt FetchError, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestFetch_LocalPaths(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "clip.mp4")
	os.WriteFile(p, []byte("x"), 0644)

	f := newTestFetcher(t, nil)
	for _, in := range []string{p, "file://" + filepath.ToSlash(p)} {
		got, err := f.Fetch(context.Background(), in)
		if err != nil || got != p {
			t.Errorf("Fetch(%s) = %s, %v", in, got, err)
		}
	}

	_, err := f.Fetch(context.Background(), filepath.Join(dir, "gone.mp4"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing local file error = %v", err)
	}
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	f := newTestFetcher(t, nil)
	if _, err := f.Fetch(context.Background(), "ftp://host/a.mp4"); err == nil {
		t.Error("expected error for ftp scheme")
	}
	if _, err := f.Fetch(context.Background(), "s3://bucket/a.mp4"); err == nil {
		t.Error("expected error for s3 without a store")
	}
}

type fakeStore struct {
	objects map[string]string
}

func (s *fakeStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	v, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, cloud.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader([]byte(v))), nil
}

func (s *fakeStore) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	return nil
}

func (s *fakeStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, ok := s.objects[bucket+"/"+key]
	return ok, nil
}

func TestFetch_S3(t *testing.T) {
	store := &fakeStore{objects: map[string]string{"media/music/theme.mp3": "mp3"}}
	f := newTestFetcher(t, store)

	p, err := f.Fetch(context.Background(), "s3://media/music/theme.mp3")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	data, _ := os.ReadFile(p)
	if string(data) != "mp3" {
		t.Errorf("content = %q", data)
	}

	_, err = f.Fetch(context.Background(), "s3://media/missing.mp3")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Attempts != 1 {
		t.Errorf("missing object error = %v", err)
	}
}

func TestFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	urls := []string{srv.URL + "/a.jpg", srv.URL + "/b.jpg", srv.URL + "/a.jpg", ""}
	got, err := f.FetchAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("FetchAll() returned %d paths, want 2", len(got))
	}

	_, err = f.FetchAll(context.Background(), append(urls, srv.URL+"/bad.jpg"))
	var fe *FetchError
	if !errors.As(err, &fe) || fe.URL != srv.URL+"/bad.jpg" {
		t.Errorf("FetchAll() error = %v, want FetchError for bad.jpg", err)
	}
}
