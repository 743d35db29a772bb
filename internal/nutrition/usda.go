// internal/nutrition/usda.go

// Package nutrition looks up energy density for ingredient terms in the
// USDA FoodData Central database.
package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrLookupFailure covers every way a term can end up without energy
// data: service errors, no match, or a match without an energy nutrient.
var ErrLookupFailure = errors.New("nutrition lookup failed")

// energyNutrientNumber is the FDC nutrient number for Energy (kcal).
const energyNutrientNumber = "208"

const DefaultBaseURL = "https://api.nal.usda.gov/fdc/v1"

// Lookup returns kilocalories per 100 g for a free-text term.
type Lookup interface {
	KcalPer100g(ctx context.Context, term string) (float64, error)
}

// LookupFunc adapts a plain function to Lookup.
type LookupFunc func(ctx context.Context, term string) (float64, error)

func (f LookupFunc) KcalPer100g(ctx context.Context, term string) (float64, error) {
	return f(ctx, term)
}

// USDAClient queries the FDC foods search endpoint for the single best
// match of a term.
type USDAClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type USDAOption func(*USDAClient)

// WithBaseURL points the client at another FDC-compatible endpoint.
func WithBaseURL(u string) USDAOption {
	return func(c *USDAClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRatePerHour caps outgoing requests; FDC keys default to 1000/hour.
func WithRatePerHour(n, burst int) USDAOption {
	return func(c *USDAClient) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(n)), burst)
	}
}

func WithHTTPClient(hc *http.Client) USDAOption {
	return func(c *USDAClient) { c.client = hc }
}

func NewUSDAClient(apiKey string, opts ...USDAOption) *USDAClient {
	c := &USDAClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type foodSearchResponse struct {
	Foods []struct {
		FDCID         int    `json:"fdcId"`
		Description   string `json:"description"`
		FoodNutrients []struct {
			NutrientID     int      `json:"nutrientId"`
			NutrientNumber string   `json:"nutrientNumber"`
			NutrientName   string   `json:"nutrientName"`
			UnitName       string   `json:"unitName"`
			Value          *float64 `json:"value"`
		} `json:"foodNutrients"`
	} `json:"foods"`
}

func (c *USDAClient) KcalPer100g(ctx context.Context, term string) (float64, error) {
	if c.apiKey == "" {
		return 0, fmt.Errorf("%w: USDA api key missing", ErrLookupFailure)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLookupFailure, err)
		}
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("query", term)
	q.Set("pageSize", "1")
	u := c.baseURL + "/foods/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: create request: %v", ErrLookupFailure, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: call USDA search: %v", ErrLookupFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: read USDA response: %v", ErrLookupFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: USDA HTTP %d for %q", ErrLookupFailure, resp.StatusCode, term)
	}

	var sr foodSearchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return 0, fmt.Errorf("%w: parse USDA JSON: %v", ErrLookupFailure, err)
	}
	if len(sr.Foods) == 0 {
		return 0, fmt.Errorf("%w: no match for %q", ErrLookupFailure, term)
	}

	for _, n := range sr.Foods[0].FoodNutrients {
		if n.Value == nil {
			continue
		}
		if n.NutrientNumber == energyNutrientNumber {
			return *n.Value, nil
		}
	}
	// Some data types only label energy by name; accept it when the unit is kcal.
	for _, n := range sr.Foods[0].FoodNutrients {
		if n.Value == nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(n.NutrientName), "energy") && strings.EqualFold(n.UnitName, "kcal") {
			return *n.Value, nil
		}
	}
	return 0, fmt.Errorf("%w: no energy data for %q", ErrLookupFailure, term)
}

// CachedLookup remembers answers, including failures, per term for the
// life of a run.
type CachedLookup struct {
	next Lookup

	mu      sync.Mutex
	entries map[string]cachedAnswer
}

type cachedAnswer struct {
	kcal float64
	err  error
}

func NewCachedLookup(next Lookup) *CachedLookup {
	return &CachedLookup{next: next, entries: make(map[string]cachedAnswer)}
}

func (c *CachedLookup) KcalPer100g(ctx context.Context, term string) (float64, error) {
	c.mu.Lock()
	a, ok := c.entries[term]
	c.mu.Unlock()
	if ok {
		return a.kcal, a.err
	}

	kcal, err := c.next.KcalPer100g(ctx, term)
	if ctx.Err() != nil {
		// cancellation says nothing about the term
		return kcal, err
	}
	c.mu.Lock()
	c.entries[term] = cachedAnswer{kcal: kcal, err: err}
	c.mu.Unlock()
	return kcal, err
}
