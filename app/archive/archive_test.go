package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/draiimon/PanicSense-Final-sub000/app/logging"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	buckets map[string]bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	switch {
	case r.Method == http.MethodHead && key == "":
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key == "":
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = string(body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestNewWithoutEndpointIsDisabled(t *testing.T) {
	a, err := New(config.StorageConfig{}, logging.Discard())
	if err != nil || a != nil {
		t.Fatalf("expected nil archive, got %v %v", a, err)
	}
}

func TestEnsureBucketAndStore(t *testing.T) {
	s3 := &fakeS3{objects: map[string]string{}, buckets: map[string]bool{}}
	srv := httptest.NewServer(s3)
	defer srv.Close()

	a, err := New(config.StorageConfig{
		MinioEndpoint:  strings.TrimPrefix(srv.URL, "http://"),
		MinioAccessKey: "minio",
		MinioSecretKey: "minio123",
		MinioRegion:    "us-east-1",
		Bucket:         "panicsense-uploads",
	}, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := a.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	if !s3.buckets["panicsense-uploads"] {
		t.Fatalf("bucket was not created")
	}

	if err := a.Store(ctx, "abc.csv", []byte("text\nbaha\n")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// plain-HTTP uploads may arrive aws-chunked, so only look for the payload
	if got := s3.objects["panicsense-uploads/abc.csv"]; !strings.Contains(got, "text\nbaha\n") {
		t.Fatalf("stored object = %q", got)
	}
}
