package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scipunch/newsdigest/fetcher/types"
)

func TestHTTPFetcher_Success(t *testing.T) {
	const body = `<rss version="2.0"><channel><title>t</title></channel></rss>`
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	defer server.Close()

	f := NewHTTPFetcher(time.Second).WithClient(server.Client())
	raw, err := f.Fetch(context.Background(), types.FeedSource{Name: "test", URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(raw) != body {
		t.Errorf("Fetch() body = %q, want %q", raw, body)
	}
	if gotAgent != UserAgent {
		t.Errorf("User-Agent = %q, want %q", gotAgent, UserAgent)
	}
}

func TestHTTPFetcher_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name     string
		url      string
		wantKind types.FetchErrorKind
		wantCode int
	}{
		{name: "http status", url: notFound.URL, wantKind: types.HTTPStatus, wantCode: http.StatusNotFound},
		{name: "timeout", url: slow.URL, wantKind: types.Timeout},
		{name: "connection refused", url: closedURL, wantKind: types.Network},
	}

	f := NewHTTPFetcher(100 * time.Millisecond)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := types.FeedSource{Name: tt.name, URL: tt.url}
			raw, err := f.Fetch(context.Background(), source)
			if raw != nil {
				t.Errorf("Fetch() should return nil body on error, got %q", raw)
			}

			var fetchErr *types.FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("Fetch() error = %v, want *types.FetchError", err)
			}
			if fetchErr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", fetchErr.Kind, tt.wantKind)
			}
			if fetchErr.StatusCode != tt.wantCode {
				t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, tt.wantCode)
			}
			if fetchErr.Source != source {
				t.Errorf("Source = %+v, want %+v", fetchErr.Source, source)
			}
		})
	}
}

func TestNewHTTPFetcher_DefaultTimeout(t *testing.T) {
	f := NewHTTPFetcher(0)
	if f.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", f.timeout, DefaultTimeout)
	}
}
