package caching

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ListingCache keeps fetched listing pages on disk for a limited time so a
// resumed run does not re-download every index page it already walked.
type ListingCache struct {
	dir string
	ttl time.Duration
}

// NewListingCache creates the cache directory if needed.
func NewListingCache(dir string, ttl time.Duration) (*ListingCache, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create listing cache directory: %w", err)
	}
	return &ListingCache{dir: dir, ttl: ttl}, nil
}

// path maps a listing URL to its cache file.
func (c *ListingCache) path(url string) string {
	hash := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, fmt.Sprintf("%x.html", hash))
}

// Get returns the cached page and true when present and younger than the TTL.
func (c *ListingCache) Get(url string) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	filePath := c.path(url)

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.ttl {
		return nil, false
	}

	data, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a listing page.
func (c *ListingCache) Set(url string, data []byte) error {
	if err := os.WriteFile(c.path(url), data, 0600); err != nil {
		return fmt.Errorf("failed to write listing cache: %w", err)
	}
	return nil
}
