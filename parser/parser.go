package parser

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/scipunch/newsdigest/fetcher/types"
)

// Parser normalizes RSS and Atom documents into entries
type Parser struct{}

func New() Parser {
	return Parser{}
}

var _ types.FeedParser = Parser{}

// Parse converts raw feed content into entries. Entries whose title is empty
// after cleaning are dropped. Summaries are kept whole so the filter sees all
// of their text; shortening them is up to the renderer.
func (p Parser) Parse(raw []byte, source types.FeedSource) ([]types.Entry, error) {
	// gofeed.Parser keeps decoder state, so one per call
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &types.ParseError{Source: source, Err: err}
	}

	entries := make([]types.Entry, 0, len(feed.Items))
	dropped := 0
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entry := types.Entry{
			Title:    CleanText(item.Title),
			Link:     itemLink(item),
			Summary:  CleanText(itemSummary(item)),
			Source:   source.Name,
			Category: source.Category,
		}
		if entry.Title == "" {
			dropped++
			continue
		}

		// Missing timestamps stay zero rather than defaulting to now
		if item.PublishedParsed != nil {
			entry.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			entry.Published = *item.UpdatedParsed
		}

		entries = append(entries, entry)
	}

	if dropped > 0 {
		slog.Debug("dropped untitled entries", "feed", source.Name, "count", dropped)
	}
	return entries, nil
}

func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, link := range item.Links {
		if link = strings.TrimSpace(link); link != "" {
			return link
		}
	}
	return ""
}

func itemSummary(item *gofeed.Item) string {
	if strings.TrimSpace(item.Description) != "" {
		return item.Description
	}
	return item.Content
}

// blockElements get a separating space so adjacent blocks don't glue words
const blockElements = "br, p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote"

// CleanText strips HTML markup, decodes entities and collapses whitespace
func CleanText(s string) string {
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style").Remove()
			doc.Find(blockElements).AfterHtml(" ")
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
