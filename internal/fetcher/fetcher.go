package fetcher

import (
	"context"
)

// PageFetcher retrieves the rendered HTML of a page by its title.
type PageFetcher interface {
	// FetchPage returns the page markup for title.
	FetchPage(ctx context.Context, title string) (string, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, title string) (string, error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc) FetchPage(ctx context.Context, title string) (string, error) {
	return f(ctx, title)
}
