package collector

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scipunch/newsdigest/digest"
	"github.com/scipunch/newsdigest/fetcher/types"
	"github.com/scipunch/newsdigest/filter"
)

// Collector fetches, parses and filters every feed of a collection
// concurrently and aggregates the survivors into a digest
type Collector struct {
	fetcher     types.FeedFetcher
	parser      types.FeedParser
	concurrency int
}

// New creates a collector. A concurrency of zero or less runs one pipeline
// per feed at once.
func New(fetcher types.FeedFetcher, parser types.FeedParser, concurrency int) *Collector {
	return &Collector{
		fetcher:     fetcher,
		parser:      parser,
		concurrency: concurrency,
	}
}

// outcome is the result of one feed pipeline
type outcome struct {
	entries  []types.Entry
	filtered int
	err      error
}

// Collect builds the digest of collection for the day containing asOf.
//
// A feed that fails to fetch or parse contributes no entries and is listed
// in Digest.Failures; it never stops the other feeds. The only error comes
// from rules that don't compile.
func (c *Collector) Collect(ctx context.Context, collection types.Collection, asOf time.Time) (digest.Digest, error) {
	d := digest.Digest{
		Collection: collection.Name,
		Date:       StartOfDay(asOf),
		Feeds:      len(collection.Feeds),
	}

	f, err := filter.New(collection)
	if err != nil {
		return d, &types.ConfigError{Err: err}
	}

	start := time.Now()
	results := make([]outcome, len(collection.Feeds))

	// The pipelines never return an error, so a failing feed can't cancel
	// its siblings. Each one writes only its own slot of results.
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, source := range collection.Feeds {
		g.Go(func() error {
			results[i] = c.run(ctx, collection.Name, source, f)
			return nil
		})
	}
	_ = g.Wait()

	var (
		candidates []ranked
		filtered   int
	)
	for i, res := range results {
		if res.err != nil {
			d.Failures = append(d.Failures, digest.FeedFailure{Feed: collection.Feeds[i], Err: res.err})
			continue
		}
		filtered += res.filtered
		for _, e := range res.entries {
			candidates = append(candidates, ranked{entry: e, source: i})
		}
	}

	slices.SortFunc(candidates, compare)

	var cutoff time.Time
	if collection.FetchWindow > 0 {
		cutoff = d.Date.Add(-collection.FetchWindow)
	}
	seen := make(map[string]bool, len(candidates))
	stale, duplicates := 0, 0
	d.Entries = make([]types.Entry, 0, len(candidates))
	for _, r := range candidates {
		e := r.entry
		if !cutoff.IsZero() && e.HasPublished() && e.Published.Before(cutoff) {
			stale++
			continue
		}
		if e.Link != "" {
			if seen[e.Link] {
				duplicates++
				continue
			}
			seen[e.Link] = true
		}
		d.Entries = append(d.Entries, e)
	}

	if d.Feeds > 0 && len(d.Failures) == d.Feeds {
		slog.Error("every feed of the collection failed", "collection", collection.Name, "feeds", d.Feeds)
	}
	slog.Info("collection collected",
		"collection", collection.Name,
		"date", d.DateString(),
		"feeds_ok", d.Succeeded(),
		"feeds_failed", len(d.Failures),
		"entries", len(d.Entries),
		"filtered", filtered,
		"stale", stale,
		"duplicates", duplicates,
		"took", time.Since(start))

	return d, nil
}

// run is one fetch, parse and filter pipeline
func (c *Collector) run(ctx context.Context, collection string, source types.FeedSource, f *filter.Filter) outcome {
	raw, err := c.fetcher.Fetch(ctx, source)
	if err != nil {
		slog.Warn("feed fetch failed", "collection", collection, "feed", source.Name, "error", err)
		return outcome{err: err}
	}

	entries, err := c.parser.Parse(raw, source)
	if err != nil {
		slog.Warn("feed parse failed", "collection", collection, "feed", source.Name, "error", err)
		return outcome{err: err}
	}

	var res outcome
	for _, e := range entries {
		if ok, reason := f.Match(e); !ok {
			slog.Debug("entry filtered out", "feed", source.Name, "title", e.Title, "reason", reason, "url", e.Link)
			res.filtered++
			continue
		}
		res.entries = append(res.entries, e)
	}

	slog.Info("feed collected", "collection", collection, "feed", source.Name, "entries", len(res.entries), "filtered", res.filtered)
	return res
}

// ranked remembers which feed an entry came from for tie-breaking
type ranked struct {
	entry  types.Entry
	source int
}

// compare is the digest order: newest first with untimed entries last, then
// configured feed order, then title and link. It is total, so the result never
// depends on which pipeline finished first.
func compare(a, b ranked) int {
	if c := digest.ComparePublished(a.entry, b.entry); c != 0 {
		return c
	}
	if a.source != b.source {
		return a.source - b.source
	}
	if c := strings.Compare(a.entry.Title, b.entry.Title); c != 0 {
		return c
	}
	return strings.Compare(a.entry.Link, b.entry.Link)
}

// StartOfDay truncates t to midnight in its own location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
