package penguins

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// DefaultDatasetURL is the cleaned Palmer penguins table.
const DefaultDatasetURL = "https://raw.githubusercontent.com/dataprofessor/palmer-penguins/master/data/penguins_cleaned.csv"

// Source loads the reference dataset.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
	Location() string
}

// HTTPSource fetches the dataset over HTTP on every Load.
type HTTPSource struct {
	URL    string
	Client *http.Client
	Logger *zap.Logger
}

// NewHTTPSource creates a source with its own client bounded by timeout.
func NewHTTPSource(url string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

func (s *HTTPSource) Location() string {
	return s.URL
}

func (s *HTTPSource) Load(ctx context.Context) (*Dataset, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrDataUnavailable, s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: fetch %s: status %d", ErrDataUnavailable, s.URL, resp.StatusCode)
	}

	dataset, err := ParseDataset(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrDataUnavailable, s.URL, err)
	}

	s.Logger.Debug("reference dataset fetched",
		zap.String("url", s.URL),
		zap.Int("rows", dataset.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return dataset, nil
}

// FileSource reads the dataset from a local path.
type FileSource struct {
	Path string
}

func (s *FileSource) Location() string {
	return s.Path
}

func (s *FileSource) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer f.Close()

	dataset, err := ParseDataset(f)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrDataUnavailable, s.Path, err)
	}
	return dataset, nil
}

// CachedSource keeps the last loaded dataset for ttl before loading again.
type CachedSource struct {
	inner Source
	cache *expirable.LRU[string, *Dataset]
}

// WithCache wraps src with a ttl cache. A non-positive ttl returns src unchanged,
// so every Load goes to the underlying source.
func WithCache(src Source, ttl time.Duration) Source {
	if ttl <= 0 {
		return src
	}
	return &CachedSource{
		inner: src,
		cache: expirable.NewLRU[string, *Dataset](1, nil, ttl),
	}
}

func (s *CachedSource) Location() string {
	return s.inner.Location()
}

func (s *CachedSource) Load(ctx context.Context) (*Dataset, error) {
	key := s.inner.Location()
	if dataset, ok := s.cache.Get(key); ok {
		return dataset, nil
	}
	dataset, err := s.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, dataset)
	return dataset, nil
}

// NewSource picks an HTTP source for http(s) locations and a file source otherwise,
// then applies the cache ttl.
func NewSource(location string, timeout, cacheTTL time.Duration, logger *zap.Logger) Source {
	var src Source
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		src = NewHTTPSource(location, timeout, logger)
	} else {
		src = &FileSource{Path: strings.TrimPrefix(location, "file://")}
	}
	return WithCache(src, cacheTTL)
}
