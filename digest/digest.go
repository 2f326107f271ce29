package digest

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/scipunch/newsdigest/fetcher/types"
)

const (
	DateLayout      = "2006-01-02"
	PublishedLayout = "2006-01-02 15:04 MST"

	// NoEntriesMarker replaces the entry list of an empty digest so the file
	// is never blank
	NoEntriesMarker = "_No relevant entries._"

	// MaxSummaryRunes bounds the rendered summary of each entry
	MaxSummaryRunes = 200

	// DefaultCategory holds entries whose feed names no category
	DefaultCategory = "other"
)

// categoryOrder fixes the order of digest sections. Categories missing here
// follow it alphabetically.
var categoryOrder = []string{"official", "domestic", "international", "tech", "reddit", "industry", DefaultCategory}

var categoryLabels = map[string]string{
	"official":      "Official",
	"domestic":      "Domestic media",
	"international": "International media",
	"tech":          "Tech community",
	"reddit":        "Reddit",
	"industry":      "Industry",
	DefaultCategory: "Other",
}

// FeedFailure records a feed that contributed nothing to the digest
type FeedFailure struct {
	Feed types.FeedSource
	Err  error
}

// Digest is the filtered, ordered set of entries for one collection on one date
type Digest struct {
	Collection string
	Date       time.Time // midnight of the digest date in the reference timezone
	Entries    []types.Entry
	Feeds      int // number of feeds attempted
	Failures   []FeedFailure
}

// DateString formats the digest date as YYYY-MM-DD
func (d Digest) DateString() string {
	return d.Date.Format(DateLayout)
}

// Succeeded is the number of feeds that were fetched and parsed
func (d Digest) Succeeded() int {
	return d.Feeds - len(d.Failures)
}

// Render formats the digest as Markdown. The output depends only on the
// digest's content. When any entry carries a category, entries are grouped
// into one section per category, newest first inside each section.
func Render(d Digest) string {
	var b strings.Builder
	loc := d.Date.Location()

	fmt.Fprintf(&b, "# %s — %s\n\n", d.Collection, d.DateString())
	fmt.Fprintf(&b, "> Entries: %d / Feeds: %d ok, %d failed\n\n", len(d.Entries), d.Succeeded(), len(d.Failures))

	if len(d.Entries) == 0 {
		b.WriteString(NoEntriesMarker + "\n")
	}

	entries := Ordered(d.Entries)
	grouped := slices.ContainsFunc(entries, func(e types.Entry) bool { return e.Category != "" })
	if grouped {
		slices.SortStableFunc(entries, func(a, b types.Entry) int {
			return compareCategory(CategoryOf(a), CategoryOf(b))
		})
	}

	section := ""
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		if c := CategoryOf(e); grouped && (i == 0 || c != section) {
			section = c
			fmt.Fprintf(&b, "## %s\n\n", categoryLabel(c))
		}

		if e.Link != "" {
			fmt.Fprintf(&b, "- [%s](%s)", escapeText(e.Title), escapeLink(e.Link))
		} else {
			b.WriteString("- " + escapeText(e.Title))
		}
		if e.Source != "" {
			b.WriteString(" | " + e.Source)
		}
		b.WriteString("\n")

		if e.Summary != "" {
			b.WriteString("  " + escapeText(Truncate(e.Summary, MaxSummaryRunes)) + "\n")
		}
		if e.HasPublished() {
			b.WriteString("  Published: " + e.Published.In(loc).Format(PublishedLayout) + "\n")
		}
	}

	if len(d.Failures) > 0 {
		b.WriteString("\n---\n\n## Fetch errors\n\n")
		for _, f := range d.Failures {
			cause := "unknown error"
			if f.Err != nil {
				cause = strings.Join(strings.Fields(f.Err.Error()), " ")
			}
			fmt.Fprintf(&b, "- **%s**: %s\n", f.Feed.Name, cause)
		}
	}

	return b.String()
}

// CategoryOf is the section an entry is rendered under
func CategoryOf(e types.Entry) string {
	if c := strings.ToLower(strings.TrimSpace(e.Category)); c != "" {
		return c
	}
	return DefaultCategory
}

func compareCategory(a, b string) int {
	if c := cmp.Compare(categoryRank(a), categoryRank(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func categoryRank(c string) int {
	if i := slices.Index(categoryOrder, c); i >= 0 {
		return i
	}
	return len(categoryOrder)
}

func categoryLabel(c string) string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return c
}

// ComparePublished orders newer entries first and entries without a
// timestamp after all timestamped ones
func ComparePublished(a, b types.Entry) int {
	switch {
	case a.HasPublished() && !b.HasPublished():
		return -1
	case !a.HasPublished() && b.HasPublished():
		return 1
	}
	return b.Published.Compare(a.Published)
}

// Ordered returns a copy of entries stably sorted by ComparePublished, so an
// order already established among equal timestamps survives
func Ordered(entries []types.Entry) []types.Entry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, ComparePublished)
	return out
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	`[`, `\[`,
	`]`, `\]`,
	`*`, `\*`,
	`_`, `\_`,
	"`", "\\`",
)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

var linkEscaper = strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29")

func escapeLink(s string) string {
	return linkEscaper.Replace(s)
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
