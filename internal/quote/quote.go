// Package quote fetches the quote of the day, caching the result for the
// calendar day and degrading to a fixed fallback list on any failure. It
// never produces an empty quote.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/fuegovibe/backend/internal/model"
)

// DefaultAPIURL is the zenquotes endpoint for today's quote.
const DefaultAPIURL = "https://zenquotes.io/api/today"

// FallbackQuotes is served when the remote API is unreachable or returns
// nothing usable.
var FallbackQuotes = []model.Quote{
	{Quote: "The only limit to our realization of tomorrow is our doubts of today.", Author: "Franklin D. Roosevelt"},
	{Quote: "Believe you can and you're halfway there.", Author: "Theodore Roosevelt"},
	{Quote: "Success is not final, failure is not fatal: it is the courage to continue that counts.", Author: "Winston Churchill"},
	{Quote: "The future belongs to those who believe in the beauty of their dreams.", Author: "Eleanor Roosevelt"},
	{Quote: "It always seems impossible until it's done.", Author: "Nelson Mandela"},
	{Quote: "Don't watch the clock; do what it does. Keep going.", Author: "Sam Levenson"},
	{Quote: "The only way to do great work is to love what you do.", Author: "Steve Jobs"},
	{Quote: "If you can dream it, you can do it.", Author: "Walt Disney"},
	{Quote: "Start where you are. Use what you have. Do what you can.", Author: "Arthur Ashe"},
	{Quote: "The secret of getting ahead is getting started.", Author: "Mark Twain"},
}

// randomFallback picks one fallback quote.
func randomFallback() model.Quote {
	return FallbackQuotes[rand.Intn(len(FallbackQuotes))]
}

// Client fetches and caches the quote of the day.
type Client struct {
	http *http.Client
	url  string
	log  *slog.Logger

	mu       sync.Mutex
	cached   *model.Quote
	cachedAt time.Time

	now func() time.Time
}

// NewClient constructs a quote client for the given API URL; an empty url
// selects DefaultAPIURL.
func NewClient(url string, log *slog.Logger) *Client {
	if url == "" {
		url = DefaultAPIURL
	}
	return &Client{
		http: &http.Client{Timeout: 10 * time.Second},
		url:  url,
		log:  log,
		now:  time.Now,
	}
}

// QuoteOfTheDay returns the cached quote when it was fetched today,
// otherwise fetches a fresh one. Failures degrade to a fallback quote.
func (c *Client) QuoteOfTheDay(ctx context.Context) model.Quote {
	c.mu.Lock()
	if c.cached != nil && sameDay(c.cachedAt, c.now()) {
		q := *c.cached
		c.mu.Unlock()
		return q
	}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Refresh fetches from the API regardless of the cache, falling back on any
// failure. A successful fetch replaces the cache.
func (c *Client) Refresh(ctx context.Context) model.Quote {
	q, err := c.fetch(ctx)
	if err != nil {
		c.log.Warn("quote fetch failed, using fallback", "error", err)
		return randomFallback()
	}
	c.mu.Lock()
	c.cached = &q
	c.cachedAt = c.now()
	c.mu.Unlock()
	return q
}

func (c *Client) fetch(ctx context.Context) (model.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return model.Quote{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("quote API returned status %d", resp.StatusCode)
	}

	// The API responds with an array; the first element is today's quote.
	var quotes []model.Quote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return model.Quote{}, fmt.Errorf("decode quote response: %w", err)
	}
	if len(quotes) == 0 || quotes[0].Quote == "" {
		return model.Quote{}, fmt.Errorf("quote API returned no quotes")
	}
	return quotes[0], nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
