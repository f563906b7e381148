package storage

import (
	"context"
	"errors"
	"strings"
)

// FallbackFetcher routes a fetch to the local FileStore when the URL is one
// of its own, and to the remote fetcher otherwise. Bare keys with no scheme
// always resolve locally.
type FallbackFetcher struct {
	local  *FileStore
	remote Fetcher
}

func NewFallbackFetcher(local *FileStore, remote Fetcher) *FallbackFetcher {
	return &FallbackFetcher{local: local, remote: remote}
}

func (f *FallbackFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	isRemote := strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
	if f.local != nil && (f.local.Owns(url) || !isRemote) {
		return f.local.Fetch(ctx, url)
	}
	if f.remote == nil {
		return nil, errors.New("storage: no fetcher for remote url")
	}
	return f.remote.Fetch(ctx, url)
}

var _ Fetcher = (*FallbackFetcher)(nil)
