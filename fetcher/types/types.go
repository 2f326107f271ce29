package types

import (
	"context"
	"fmt"
	"time"
)

// FeedSource identifies one RSS/Atom endpoint
type FeedSource struct {
	Name string `toml:"name" yaml:"name"`
	URL  string `toml:"url" yaml:"url"`
	// Category groups the feed's entries under a digest section
	Category string `toml:"category,omitempty" yaml:"category,omitempty"`
	// Language is descriptive only; nothing is filtered or rendered by it
	Language string `toml:"language,omitempty" yaml:"language,omitempty"`
}

// Collection is a named bundle of feeds plus the criteria used to filter them.
// It is read-only for the duration of a run.
type Collection struct {
	Name            string
	Feeds           []FeedSource
	Keywords        []string
	ExcludeKeywords []string
	ExcludePatterns []string
	// FetchWindow drops entries published earlier than the digest date minus
	// the window. Zero disables it.
	FetchWindow time.Duration
}

// Entry is one normalized feed item
type Entry struct {
	Title     string
	Link      string
	Summary   string
	Published time.Time // zero when the feed carries no timestamp
	Source    string    // name of the FeedSource the entry came from
	Category  string    // category of that FeedSource, may be empty
}

// HasPublished reports whether the feed provided a timestamp for the entry
func (e Entry) HasPublished() bool {
	return !e.Published.IsZero()
}

// FeedFetcher retrieves raw feed content for one source
type FeedFetcher interface {
	Fetch(ctx context.Context, source FeedSource) ([]byte, error)
}

// FeedParser turns raw feed content into normalized entries
type FeedParser interface {
	Parse(raw []byte, source FeedSource) ([]Entry, error)
}

// FetchErrorKind classifies why a fetch failed
type FetchErrorKind int

const (
	Network FetchErrorKind = iota
	Timeout
	HTTPStatus
)

func (k FetchErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case HTTPStatus:
		return "http status"
	default:
		return "network"
	}
}

// FetchError is a recoverable per-feed failure to retrieve content
type FetchError struct {
	Source     FeedSource
	Kind       FetchErrorKind
	StatusCode int // set when Kind is HTTPStatus
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case HTTPStatus:
		return fmt.Sprintf("fetch '%s' failed with HTTP status %d", e.Source.URL, e.StatusCode)
	case Timeout:
		return fmt.Sprintf("fetch '%s' timed out", e.Source.URL)
	default:
		return fmt.Sprintf("fetch '%s' failed with %v", e.Source.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a recoverable per-feed failure to interpret content as RSS/Atom
type ParseError struct {
	Source FeedSource
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse '%s' failed with %v", e.Source.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError is a fatal failure to persist a digest
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to write '%s' with %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ConfigError is a fatal problem with a configuration document
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid config: %v", e.Err)
	}
	return fmt.Sprintf("invalid config at '%s': %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
