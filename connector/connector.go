// Package connector defines the source-feed abstraction the ingestion
// pipeline pulls from.
package connector

import (
	"context"
	"time"

	"github.com/krakenhq/kraken/core"
)

// Page is one page of source items plus the token for the next page.
// An empty NextPageToken means the feed is exhausted. Skipped counts
// source entries the connector dropped as non-content (system messages,
// empty text), so runs can account for them.
type Page struct {
	Items         []*core.Item
	NextPageToken string
	Skipped       int
}

// Connector is a paginated, timestamp-filterable feed of source items.
// Implementations must return items in ascending creation-time order within
// a page and should honor the since lower bound server-side; connectors that
// cannot must report it via FiltersServerSide so the pipeline falls back to
// client-side filtering.
type Connector interface {
	// FetchPage retrieves one page of items for a channel created after
	// since. pageToken is the opaque continuation token from the previous
	// page, empty for the first page.
	FetchPage(ctx context.Context, channel string, since time.Time, pageToken string) (*Page, error)

	// FiltersServerSide reports whether FetchPage honors the since bound
	// on the server. When false the pipeline filters client-side.
	FiltersServerSide() bool
}
