package caching

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cache keeps raw feed pages on disk, keyed by request URL, with a TTL.
// Each entry is a body file plus a sidecar holding the effective URL the
// body was served from, so relative next links resolve as they did live.
type Cache struct {
	path string
	ttl  time.Duration
}

// Page is a cached feed response.
type Page struct {
	Body      []byte
	FinalURL  string
	FetchedAt time.Time
}

// NewCache creates a new Cache instance.
// The cache path will be created if it doesn't exist.
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{
		path: path,
		ttl:  ttl,
	}, nil
}

func (c *Cache) key(url string) string {
	hash := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x", hash)
}

func (c *Cache) files(url string) (body, meta string) {
	k := c.key(url)
	return filepath.Join(c.path, k+".xml"), filepath.Join(c.path, k+".url")
}

// Get returns the cached page for url if present and not expired.
func (c *Cache) Get(url string) (*Page, bool) {
	bodyPath, metaPath := c.files(url)

	info, err := os.Stat(bodyPath)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		return nil, false
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return nil, false
	}
	final := url
	if meta, err := os.ReadFile(metaPath); err == nil && len(meta) > 0 {
		final = strings.TrimSpace(string(meta))
	}
	return &Page{Body: body, FinalURL: final, FetchedAt: info.ModTime()}, true
}

// Set stores body as the response for url, served from finalURL.
func (c *Cache) Set(url, finalURL string, body []byte) error {
	bodyPath, metaPath := c.files(url)
	if err := os.WriteFile(metaPath, []byte(finalURL), 0644); err != nil {
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}
	if err := os.WriteFile(bodyPath, body, 0644); err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

// Prune removes expired entries and returns how many pages were deleted.
func (c *Cache) Prune() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(c.path, "*.xml"))
	if err != nil {
		return 0, fmt.Errorf("failed to list cache: %w", err)
	}
	removed := 0
	for _, bodyPath := range matches {
		info, err := os.Stat(bodyPath)
		if err != nil || time.Since(info.ModTime()) <= c.ttl {
			continue
		}
		if err := os.Remove(bodyPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove %s: %w", bodyPath, err)
		}
		_ = os.Remove(strings.TrimSuffix(bodyPath, ".xml") + ".url")
		removed++
	}
	return removed, nil
}
