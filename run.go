package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scipunch/newsdigest/collector"
	"github.com/scipunch/newsdigest/config"
	"github.com/scipunch/newsdigest/digest"
	"github.com/scipunch/newsdigest/fetcher"
	"github.com/scipunch/newsdigest/fetcher/types"
	"github.com/scipunch/newsdigest/output"
	"github.com/scipunch/newsdigest/parser"
)

// runDigests collects and writes the digest of every collection found at
// paths. Collections run one after another; the first configuration or
// write error stops the run.
func runDigests(ctx context.Context, paths []string, settings config.Settings, date string) error {
	collections, err := config.Load(paths...)
	if err != nil {
		return err
	}

	loc, err := settings.Location()
	if err != nil {
		return err
	}
	asOf, err := parseDate(date, loc, time.Now())
	if err != nil {
		return err
	}

	c := collector.New(fetcher.NewHTTPFetcher(settings.Timeout), parser.New(), settings.Concurrency)
	w := output.NewWriter(settings.OutputDirectory)

	for _, collection := range collections {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted before '%s' with %w", collection.Name, err)
		}

		d, err := c.Collect(ctx, collection, asOf)
		if err != nil {
			return err
		}
		// feeds cut off by cancellation look like failures; keep the previous digest
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted while collecting '%s' with %w", collection.Name, err)
		}

		if settings.SkipEmpty && len(d.Entries) == 0 {
			slog.Info("skipping empty digest", "collection", collection.Name, "date", d.DateString())
			continue
		}
		if _, err := w.Write(collection.Name, d.Date, digest.Render(d)); err != nil {
			return err
		}
	}
	return nil
}

// parseDate resolves the digest date in loc, defaulting to the day of now
func parseDate(value string, loc *time.Location, now time.Time) (time.Time, error) {
	if value == "" {
		return collector.StartOfDay(now.In(loc)), nil
	}
	t, err := time.ParseInLocation(digest.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, &types.ConfigError{Err: fmt.Errorf("date '%s' is not YYYY-MM-DD", value)}
	}
	return t, nil
}
