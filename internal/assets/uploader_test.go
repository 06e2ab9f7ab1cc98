package assets

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return p
}

func TestHTTPUploader_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing api key header")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if string(b) != "PNGDATA" || hdr.Filename != "pic.png" {
			t.Errorf("got %q name %q", b, hdr.Filename)
		}
		_, _ = io.WriteString(w, `{"url":"https://cdn.example/pic.png"}`)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, "k", time.Second)
	got, err := u.Upload(context.Background(), writeTemp(t, "PNGDATA"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got != "https://cdn.example/pic.png" {
		t.Fatalf("url = %q", got)
	}
}

func TestHTTPUploader_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		case "/empty":
			_, _ = io.WriteString(w, `{"url":""}`)
		default:
			_, _ = io.WriteString(w, `not json`)
		}
	}))
	defer srv.Close()

	path := writeTemp(t, "x")
	for _, tc := range []struct{ suffix, want string }{
		{"/down", "status 503"},
		{"/empty", "empty url"},
		{"/garbage", "decode"},
	} {
		_, err := NewHTTPUploader(srv.URL+tc.suffix, "", time.Second).Upload(context.Background(), path)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err = %v, want %q", tc.suffix, err, tc.want)
		}
	}

	if _, err := NewHTTPUploader("", "", 0).Upload(context.Background(), path); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewHTTPUploader(srv.URL, "", 0).Upload(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDiscard(t *testing.T) {
	p := writeTemp(t, "x")
	Discard(p)
	if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present: %v", err)
	}
	Discard(p)
	Discard("")
}
