package honolulu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/EmpoweredVote/sr311/internal/config"
	"github.com/EmpoweredVote/sr311/internal/logging"
	"github.com/EmpoweredVote/sr311/internal/metrics"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Client is an HTTP client for the Honolulu 311 Socrata resource.
type Client struct {
	baseURL    string
	appToken   string
	limit      int
	maxPages   int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]Record]

	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewClient builds a client from the ingest settings.
func NewClient(cfg config.IngestConfig) *Client {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	c := &Client{
		baseURL:    cfg.APIURL,
		appToken:   cfg.AppToken,
		limit:      cfg.PageLimit,
		maxPages:   cfg.MaxPages,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
	}
	if c.maxPages < 1 {
		c.maxPages = 1
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]Record](gobreaker.Settings{
		Name:        "honolulu-311",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l := logging.Component(component)
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c
}

// URL returns the resource endpoint this client reads from.
func (c *Client) URL() string {
	return c.baseURL
}

// Fetch retrieves up to maxPages pages, stopping at the first short page.
func (c *Client) Fetch(ctx context.Context) ([]Record, error) {
	var all []Record
	for page := 0; page < c.maxPages; page++ {
		recs, err := c.FetchPage(ctx, page*c.limit)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		all = append(all, recs...)
		if len(recs) < c.limit {
			break
		}
	}
	return all, nil
}

// FetchPage retrieves a single page of at most limit records starting at offset.
func (c *Client) FetchPage(ctx context.Context, offset int) ([]Record, error) {
	params := url.Values{}
	params.Set("$limit", strconv.Itoa(c.limit))
	if c.maxPages > 1 {
		// Stable order so offsets don't skip or repeat rows between pages.
		params.Set("$order", ":id")
	}
	if offset > 0 {
		params.Set("$offset", strconv.Itoa(offset))
	}
	fullURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	return c.breaker.Execute(func() ([]Record, error) {
		var recs []Record
		err := retry(ctx, c.maxRetries, c.backoff, c.maxBackoff, func() error {
			var err error
			recs, err = c.get(ctx, fullURL, offset)
			return err
		})
		return recs, err
	})
}

func (c *Client) get(ctx context.Context, fullURL string, offset int) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	logRequest(http.MethodGet, c.baseURL, offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordFetch(0, time.Since(start))
		logError("fetch", err)
		return nil, fmt.Errorf("open-data request: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordFetch(resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		err := &StatusError{Code: resp.StatusCode}
		logError("fetch", err)
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		logError("decode", err)
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	recs := decodeRecords(raw)

	logResponse(resp.StatusCode, time.Since(start), len(recs))
	return recs, nil
}
