package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scipunch/newsdigest/config"
	"github.com/scipunch/newsdigest/fetcher/types"
)

const feed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example</title>
<item><title>New AI model released</title><link>https://example.com/ai</link>
<description>A model.</description><pubDate>Tue, 17 Feb 2026 00:00:00 +0000</pubDate></item>
<item><title>Gardening tips</title><link>https://example.com/garden</link>
<pubDate>Tue, 17 Feb 2026 01:00:00 +0000</pubDate></item>
</channel></rss>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feed))
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeConfig(t *testing.T, name, keywords, url string, more ...string) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nkeywords: [%s]\nfetch_window: 0s\nfeeds:\n  - name: Example\n    url: %s\n", name, keywords, url)
	for _, u := range more {
		fmt.Fprintf(&b, "  - name: Broken\n    url: %s\n", u)
	}
	path := filepath.Join(t.TempDir(), name+".yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testSettings(t *testing.T) config.Settings {
	s := config.DefaultSettings()
	s.OutputDirectory = t.TempDir()
	s.Timeout = 2 * time.Second
	return s
}

func TestRunDigests(t *testing.T) {
	server := newFeedServer(t)
	cfg := writeConfig(t, "ai-news", "AI", server.URL+"/feed.xml", server.URL+"/broken.xml")
	s := testSettings(t)

	if err := runDigests(context.Background(), []string{cfg}, s, "2026-02-17"); err != nil {
		t.Fatalf("runDigests() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(s.OutputDirectory, "ai-news", "2026-02-17.md"))
	if err != nil {
		t.Fatalf("digest not written: %v", err)
	}
	out := string(got)
	for _, want := range []string{
		"# ai-news — 2026-02-17",
		"> Entries: 1 / Feeds: 1 ok, 1 failed",
		"- [New AI model released](https://example.com/ai) | Example",
		"  Published: 2026-02-17 09:00 JST",
		"- **Broken**: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("digest should contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Gardening") {
		t.Errorf("irrelevant entry rendered:\n%s", out)
	}
}

func TestRunDigests_EmptyDigest(t *testing.T) {
	server := newFeedServer(t)
	cfg := writeConfig(t, "quiet", "blockchain", server.URL+"/feed.xml")

	s := testSettings(t)
	if err := runDigests(context.Background(), []string{cfg}, s, "2026-02-17"); err != nil {
		t.Fatalf("runDigests() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(s.OutputDirectory, "quiet", "2026-02-17.md"))
	if err != nil {
		t.Fatalf("empty digest should still be written: %v", err)
	}
	if !strings.Contains(string(got), "_No relevant entries._") {
		t.Errorf("empty digest missing marker:\n%s", got)
	}

	s = testSettings(t)
	s.SkipEmpty = true
	if err := runDigests(context.Background(), []string{cfg}, s, "2026-02-17"); err != nil {
		t.Fatalf("runDigests() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.OutputDirectory, "quiet", "2026-02-17.md")); !os.IsNotExist(err) {
		t.Errorf("skip-empty should not write a file, stat error = %v", err)
	}
}

func TestRunDigests_InterruptKeepsPreviousDigest(t *testing.T) {
	server := newFeedServer(t)
	s := testSettings(t)
	if err := runDigests(context.Background(), []string{writeConfig(t, "ai-news", "AI", server.URL+"/feed.xml")}, s, "2026-02-17"); err != nil {
		t.Fatalf("runDigests() error = %v", err)
	}
	path := filepath.Join(s.OutputDirectory, "ai-news", "2026-02-17.md")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hanging := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.AfterFunc(100*time.Millisecond, cancel)
		<-r.Context().Done()
	}))
	t.Cleanup(hanging.Close)

	err = runDigests(ctx, []string{writeConfig(t, "ai-news", "AI", hanging.URL+"/feed.xml")}, s, "2026-02-17")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("runDigests() error = %v, want context.Canceled", err)
	}
	if exitCode(err) != exitFailure {
		t.Errorf("exitCode() = %d, want %d", exitCode(err), exitFailure)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Errorf("interrupted run replaced the digest:\n%s", after)
	}
}

func TestRunDigests_FatalErrors(t *testing.T) {
	server := newFeedServer(t)
	cfg := writeConfig(t, "ai-news", "AI", server.URL+"/feed.xml")

	t.Run("missing config", func(t *testing.T) {
		err := runDigests(context.Background(), []string{filepath.Join(t.TempDir(), "none.yaml")}, testSettings(t), "")
		if exitCode(err) != exitConfigError {
			t.Errorf("exitCode(%v) = %d, want %d", err, exitCode(err), exitConfigError)
		}
	})

	t.Run("bad date", func(t *testing.T) {
		err := runDigests(context.Background(), []string{cfg}, testSettings(t), "17/02/2026")
		if exitCode(err) != exitConfigError {
			t.Errorf("exitCode(%v) = %d, want %d", err, exitCode(err), exitConfigError)
		}
	})

	t.Run("unwritable output", func(t *testing.T) {
		s := testSettings(t)
		s.OutputDirectory = filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(s.OutputDirectory, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		err := runDigests(context.Background(), []string{cfg}, s, "2026-02-17")
		var ioErr *types.IOError
		if !errors.As(err, &ioErr) {
			t.Fatalf("runDigests() error = %v, want *types.IOError", err)
		}
		if exitCode(err) != exitFailure {
			t.Errorf("exitCode() = %d, want %d", exitCode(err), exitFailure)
		}
	})
}

func TestParseDate(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	// 20:00 UTC on the 16th is already the 17th in Tokyo
	now := time.Date(2026, 2, 16, 20, 0, 0, 0, time.UTC)

	got, err := parseDate("", jst, now)
	if err != nil {
		t.Fatalf("parseDate() error = %v", err)
	}
	if want := time.Date(2026, 2, 17, 0, 0, 0, 0, jst); !got.Equal(want) {
		t.Errorf("parseDate(\"\") = %v, want %v", got, want)
	}

	got, err = parseDate("2026-01-05", jst, now)
	if err != nil {
		t.Fatalf("parseDate() error = %v", err)
	}
	if want := time.Date(2026, 1, 5, 0, 0, 0, 0, jst); !got.Equal(want) {
		t.Errorf("parseDate() = %v, want %v", got, want)
	}
}

func TestExampleCollectionIsValid(t *testing.T) {
	conf := exampleCollection()
	if err := config.Validate(&conf); err != nil {
		t.Errorf("example collection should validate, got %v", err)
	}
}
