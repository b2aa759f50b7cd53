// Package fetcher pulls entity descriptions from external sources when
// the local knowledge graph has nothing to offer.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when the source has no article for the name.
var ErrNotFound = errors.New("fetcher: no description found")

// Fetcher looks up a short description of a named thing.
type Fetcher interface {
	FetchDescription(ctx context.Context, name string) (string, error)
}

// Disabled is a Fetcher that never finds anything, for deployments
// without an external wiki.
type Disabled struct{}

func (Disabled) FetchDescription(context.Context, string) (string, error) {
	return "", ErrNotFound
}

// WikiOptions configures the MediaWiki fetcher.
type WikiOptions struct {
	// BaseURL is the api.php endpoint, for example
	// "https://zh.moegirl.org.cn/api.php".
	BaseURL string
	// CacheTTL bounds how long fetched extracts are reused, default 1h.
	CacheTTL time.Duration
	// Timeout for a single lookup, default 10s.
	Timeout time.Duration
}

// WikiFetcher queries a MediaWiki extracts endpoint and caches results,
// including misses, so repeated questions about the same unknown name
// do not hammer the wiki.
type WikiFetcher struct {
	opts   WikiOptions
	client *http.Client
	cache  *gocache.Cache
	logger *logrus.Logger
}

type wikiResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string    `json:"title"`
			Extract string    `json:"extract"`
			Missing *struct{} `json:"missing,omitempty"`
		} `json:"pages"`
	} `json:"query"`
}

func NewWikiFetcher(opts WikiOptions, logger *logrus.Logger) *WikiFetcher {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &WikiFetcher{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		cache:  gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		logger: logger,
	}
}

// FetchDescription returns the intro extract for the named article.
func (f *WikiFetcher) FetchDescription(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNotFound
	}
	if cached, ok := f.cache.Get(name); ok {
		if s := cached.(string); s != "" {
			return s, nil
		}
		return "", ErrNotFound
	}

	extract, err := f.lookup(ctx, name)
	if errors.Is(err, ErrNotFound) {
		// Negative entries keep unknown names from being re-fetched.
		f.cache.SetDefault(name, "")
		return "", err
	}
	if err != nil {
		return "", err
	}
	f.cache.SetDefault(name, extract)
	return extract, nil
}

func (f *WikiFetcher) lookup(ctx context.Context, name string) (string, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"redirects":   {"1"},
		"format":      {"json"},
		"titles":      {name},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.opts.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("fetcher: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetcher: query wiki: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		f.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode, "name": name,
		}).Warn("fetcher: wiki returned non-200")
		return "", fmt.Errorf("fetcher: wiki status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed wikiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("fetcher: decode response: %w", err)
	}
	for _, page := range parsed.Query.Pages {
		if page.Missing != nil {
			continue
		}
		if extract := strings.TrimSpace(page.Extract); extract != "" {
			return extract, nil
		}
	}
	return "", ErrNotFound
}
