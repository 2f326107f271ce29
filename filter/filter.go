package filter

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/scipunch/newsdigest/fetcher/types"
)

// IsRelevant reports whether any keyword occurs in the entry's title or
// summary, ignoring case.
//
// An empty keyword set matches every entry: collections without keywords
// pass their feeds through unfiltered. Blank keywords are ignored, so a set
// made only of blanks counts as empty.
func IsRelevant(entry types.Entry, keywords []string) bool {
	folded := foldAll(keywords)
	if len(folded) == 0 {
		return true
	}
	return containsAny(fold(entryText(entry)), folded)
}

// Filter applies a collection's inclusion and exclusion rules to entries
type Filter struct {
	keywords        []string
	excludeKeywords []string
	excludePatterns []*regexp.Regexp
}

// New compiles the rules of a collection. Invalid exclude patterns are an error.
func New(c types.Collection) (*Filter, error) {
	f := &Filter{
		keywords:        foldAll(c.Keywords),
		excludeKeywords: foldAll(c.ExcludeKeywords),
		excludePatterns: make([]*regexp.Regexp, 0, len(c.ExcludePatterns)),
	}
	for _, pattern := range c.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile exclude pattern '%s' with %w", pattern, err)
		}
		f.excludePatterns = append(f.excludePatterns, re)
	}
	return f, nil
}

// Match returns true if the entry should be kept, otherwise false and the
// rule that rejected it
func (f *Filter) Match(entry types.Entry) (bool, string) {
	text := entryText(entry)
	folded := fold(text)

	// Exclusions win over keyword matches
	for _, kw := range f.excludeKeywords {
		if strings.Contains(folded, kw) {
			return false, "exclude_keyword[" + kw + "]"
		}
	}
	for _, re := range f.excludePatterns {
		if re.MatchString(text) {
			return false, "exclude_pattern[" + re.String() + "]"
		}
	}

	if len(f.keywords) > 0 && !containsAny(folded, f.keywords) {
		return false, "keywords"
	}
	return true, ""
}

func entryText(entry types.Entry) string {
	return entry.Title + " " + entry.Summary
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// fold applies Unicode case folding. Casers are stateful, hence one per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

func foldAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		out = append(out, fold(kw))
	}
	return out
}
