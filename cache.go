package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/viccon/sturdyc"
)

// IndexFetcher loads the full package search index.
type IndexFetcher func(ctx context.Context) ([]Package, error)

// PackageIndex is a read-through cache of the registry search index.
// It is loaded on first use and kept for the lifetime of the process.
type PackageIndex struct {
	// lock is a one-slot semaphore so that waiters can give up on
	// context cancellation.
	lock  chan struct{}
	fetch IndexFetcher

	packages []Package
	loaded   bool
}

func NewPackageIndex(fetch IndexFetcher) *PackageIndex {
	return &PackageIndex{
		lock:  make(chan struct{}, 1),
		fetch: fetch,
	}
}

// Get returns the cached index, fetching it if no earlier call succeeded.
// The lock is held across the fetch, so concurrent callers on a cold
// index wait for a single request instead of issuing their own. A failed
// fetch leaves the index empty and the next call tries again.
func (c *PackageIndex) Get(ctx context.Context) ([]Package, error) {
	select {
	case c.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.lock }()

	if c.loaded {
		return c.packages, nil
	}

	packages, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if packages == nil {
		packages = []Package{}
	}

	c.packages = packages
	c.loaded = true

	slog.InfoContext(ctx, "loaded package index", "packages", len(packages))

	return packages, nil
}

const (
	docsCacheCapacity = 512
	docsCacheShards   = 8
	docsCacheTTL      = 24 * time.Hour
	docsCacheEviction = 10
)

// DocsCache is an in-memory cache of docs.json payloads. Published docs
// never change for a given version, so the TTL only bounds memory.
type DocsCache struct {
	client *sturdyc.Client[json.RawMessage]
}

func NewDocsCache() *DocsCache {
	return &DocsCache{
		client: sturdyc.New[json.RawMessage](
			docsCacheCapacity, docsCacheShards, docsCacheTTL, docsCacheEviction,
		),
	}
}

// GetOrFetch returns the cached docs for a package version, calling fetch
// on a miss. Concurrent misses for the same key share one fetch. Errors
// are not cached.
func (c *DocsCache) GetOrFetch(
	ctx context.Context, author, pkg, version string,
	fetch func(context.Context) (json.RawMessage, error),
) (json.RawMessage, error) {
	return c.client.GetOrFetch(ctx, docsKey(author, pkg, version), fetch)
}

func docsKey(author, pkg, version string) string {
	return author + "/" + pkg + "@" + version
}
