package fetcher

import "github.com/scipunch/newsdigest/fetcher/types"

// Fetcher retrieves raw feed content for one source
type Fetcher = types.FeedFetcher

var _ Fetcher = (*HTTPFetcher)(nil)
