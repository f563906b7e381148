package storage

import "context"

// Store persists image bytes under a key and returns a public URL for the
// stored object. Keys are identity-derived and overwritable, so re-running
// an upload for the same edit is safe.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// Fetcher retrieves image bytes from a previously stored URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
