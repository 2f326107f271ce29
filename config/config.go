package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
	_ "time/tzdata" // reference timezones must resolve on minimal hosts

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/scipunch/newsdigest/fetcher/types"
	"github.com/scipunch/newsdigest/filter"
)

const (
	DefaultFetchWindow = 48 * time.Hour
	DefaultTimeout     = 30 * time.Second
	DefaultTimezone    = "Asia/Tokyo"
	DefaultOutput      = "output"
)

// Collection names become directory names, so keep them to one safe segment
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// CollectionConfig is one collection document as written on disk
type CollectionConfig struct {
	Name            string             `toml:"name" yaml:"name"`
	Feeds           []types.FeedSource `toml:"feeds" yaml:"feeds"`
	Keywords        []string           `toml:"keywords" yaml:"keywords"`
	ExcludeKeywords []string           `toml:"exclude_keywords,omitempty" yaml:"exclude_keywords,omitempty"`
	ExcludePatterns []string           `toml:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty"` // Go regular expressions
	FetchWindow     *Duration          `toml:"fetch_window,omitempty" yaml:"fetch_window,omitempty"`         // defaults to 48h, "0s" disables
	FetchHours      *int               `toml:"fetch_hours,omitempty" yaml:"fetch_hours,omitempty"`           // whole-hour form of fetch_window
	Enabled         *bool              `toml:"enabled,omitempty" yaml:"enabled,omitempty"`                   // defaults to true if not set
}

// IsEnabled returns true if the collection is enabled (defaults to true if not explicitly set)
func (c CollectionConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// Collection converts the document into the immutable run value
func (c CollectionConfig) Collection() types.Collection {
	window := DefaultFetchWindow
	switch {
	case c.FetchWindow != nil:
		window = c.FetchWindow.Duration
	case c.FetchHours != nil:
		window = time.Duration(*c.FetchHours) * time.Hour
	}
	return types.Collection{
		Name:            c.Name,
		Feeds:           slices.Clone(c.Feeds),
		Keywords:        slices.Clone(c.Keywords),
		ExcludeKeywords: slices.Clone(c.ExcludeKeywords),
		ExcludePatterns: slices.Clone(c.ExcludePatterns),
		FetchWindow:     window,
	}
}

// Settings are the per-run options shared by every collection
type Settings struct {
	OutputDirectory string
	Timeout         time.Duration
	Concurrency     int // 0 runs every feed of a collection at once
	Timezone        string
	SkipEmpty       bool // don't write digests without entries
}

func DefaultSettings() Settings {
	return Settings{
		OutputDirectory: DefaultOutput,
		Timeout:         DefaultTimeout,
		Timezone:        DefaultTimezone,
	}
}

// Location resolves the reference timezone used for digest dates
func (s Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, &types.ConfigError{Err: fmt.Errorf("unknown timezone '%s': %w", s.Timezone, err)}
	}
	return loc, nil
}

// Read decodes one collection document. The format follows the extension:
// .toml, or .yaml/.yml. Keys that no field accepts are an error, so a typo
// never silently falls back to a default.
func Read(path string) (CollectionConfig, error) {
	var conf CollectionConfig
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, &types.ConfigError{Path: path, Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var md toml.MetaData
		md, err = toml.Decode(string(dat), &conf)
		if err == nil {
			err = unknownKeys(md.Undecoded())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(dat))
		dec.KnownFields(true)
		// an empty document leaves conf zero and fails validation instead
		if err = dec.Decode(&conf); errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		err = fmt.Errorf("unsupported config format '%s'", filepath.Ext(path))
	}
	if err != nil {
		return conf, &types.ConfigError{Path: path, Err: fmt.Errorf("failed to decode with %w", err)}
	}
	return conf, nil
}

func unknownKeys(keys []toml.Key) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, "'"+k.String()+"'")
	}
	return fmt.Errorf("unknown keys %s", strings.Join(names, ", "))
}

// Write encodes conf into path, choosing the format by extension
func Write(path string, conf CollectionConfig) error {
	var (
		blob []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		blob, err = toml.Marshal(conf)
	case ".yaml", ".yml":
		blob, err = yaml.Marshal(conf)
	default:
		err = fmt.Errorf("unsupported config format '%s'", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}

	basePath := filepath.Dir(path)
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", path, err)
	}
	slog.Info("config written", "at", path)
	return nil
}

// Load reads and validates every collection found at paths. A directory
// contributes its .toml, .yaml and .yml files in lexical order. Disabled
// collections are skipped.
func Load(paths ...string) ([]types.Collection, error) {
	if len(paths) == 0 {
		return nil, &types.ConfigError{Err: errors.New("no configuration given")}
	}

	files, err := expand(paths)
	if err != nil {
		return nil, err
	}

	var collections []types.Collection
	seen := make(map[string]string)
	for _, file := range files {
		conf, err := Read(file)
		if err != nil {
			return nil, err
		}
		if err := Validate(&conf); err != nil {
			return nil, &types.ConfigError{Path: file, Err: err}
		}
		if prev, ok := seen[conf.Name]; ok {
			return nil, &types.ConfigError{Path: file, Err: fmt.Errorf("collection '%s' already defined in '%s'", conf.Name, prev)}
		}
		seen[conf.Name] = file

		if !conf.IsEnabled() {
			slog.Debug("skipping disabled collection", "collection", conf.Name, "path", file)
			continue
		}
		collections = append(collections, conf.Collection())
	}

	if len(collections) == 0 {
		return nil, &types.ConfigError{Err: errors.New("no enabled collections found")}
	}
	return collections, nil
}

func expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &types.ConfigError{Path: p, Err: err}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, &types.ConfigError{Path: p, Err: err}
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".toml", ".yaml", ".yml":
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	return files, nil
}

// Validate checks conf and fills defaults: trimmed keywords and feed names
// derived from the feed host.
func Validate(conf *CollectionConfig) error {
	conf.Name = strings.TrimSpace(conf.Name)
	if conf.Name == "" {
		return errors.New("collection name is required")
	}
	if !namePattern.MatchString(conf.Name) {
		return fmt.Errorf("collection name '%s' must match %s", conf.Name, namePattern)
	}
	if len(conf.Feeds) == 0 {
		return fmt.Errorf("collection '%s' has no feeds", conf.Name)
	}

	urls := make(map[string]bool, len(conf.Feeds))
	for i := range conf.Feeds {
		feed := &conf.Feeds[i]
		feed.URL = strings.TrimSpace(feed.URL)
		u, err := url.Parse(feed.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("feed %d of '%s' needs an absolute http(s) url, got '%s'", i+1, conf.Name, feed.URL)
		}
		if urls[feed.URL] {
			slog.Warn("feed listed twice", "collection", conf.Name, "url", feed.URL)
		}
		urls[feed.URL] = true

		feed.Name = strings.TrimSpace(feed.Name)
		if feed.Name == "" {
			feed.Name = u.Host
		}
		feed.Category = strings.ToLower(strings.TrimSpace(feed.Category))
		feed.Language = strings.TrimSpace(feed.Language)
	}

	conf.Keywords = trimAll(conf.Keywords)
	conf.ExcludeKeywords = trimAll(conf.ExcludeKeywords)
	if conf.FetchWindow != nil && conf.FetchHours != nil {
		return fmt.Errorf("collection '%s' sets both fetch_window and fetch_hours", conf.Name)
	}
	if conf.FetchWindow != nil && conf.FetchWindow.Duration < 0 {
		return fmt.Errorf("fetch_window of '%s' must not be negative", conf.Name)
	}
	if conf.FetchHours != nil && *conf.FetchHours < 0 {
		return fmt.Errorf("fetch_hours of '%s' must not be negative", conf.Name)
	}

	// Compiling the rules surfaces bad patterns before any feed is fetched
	if _, err := filter.New(conf.Collection()); err != nil {
		return err
	}
	return nil
}

func trimAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Duration is a time.Duration written as a string such as "48h"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
