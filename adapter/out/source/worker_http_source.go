// Package source fetches raw records from paginated outreach platform APIs.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"outreach_worker/core/port/out"
	"outreach_worker/pkg/httputil"
	"outreach_worker/pkg/resilience"
)

// Config describes how to reach the record API.
type Config struct {
	BaseURL string
	APIKey  string

	// Client credentials take precedence over the API key when all three are set.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string

	Timeout time.Duration
}

func (c Config) usesClientCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.TokenURL != ""
}

// StatusError is a non-2xx response from the record API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source API error: %d - %s", e.Code, e.Body)
}

// clientError reports 4xx responses other than 429. They say nothing about
// the health of the remote side, so they never trip the breaker.
func clientError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

// =============================================================================
// Provider
// =============================================================================

// Provider hands out one HTTPSource per connection for a single resource
// (calls, replies, variants). Sources of a provider share the HTTP client
// and the circuit breaker.
type Provider struct {
	cfg      Config
	resource string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker

	mu      sync.Mutex
	sources map[string]*HTTPSource
}

// NewProvider returns a provider for resource. An empty base URL yields a
// provider whose connections all report out.ErrSourceNotConfigured.
func NewProvider(cfg Config, resource string) *Provider {
	client := httputil.NewClient(httputil.SourceClientConfig(cfg.Timeout))
	if cfg.usesClientCredentials() {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// token requests go through the pooled client as well
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		authed := cc.Client(ctx)
		authed.Timeout = client.Timeout
		client = authed
	}

	bc := resilience.DefaultBreakerConfig("source:" + resource)
	bc.Ignore = clientError

	return &Provider{
		cfg:      cfg,
		resource: resource,
		client:   client,
		breaker:  resilience.NewBreaker(bc),
		sources:  make(map[string]*HTTPSource),
	}
}

func (p *Provider) ForConnection(connectionID string) (out.RecordSource, error) {
	if p.cfg.BaseURL == "" {
		return nil, out.ErrSourceNotConfigured
	}
	if strings.TrimSpace(connectionID) == "" {
		return nil, fmt.Errorf("%w: empty connection id", out.ErrSourceNotConfigured)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if src, ok := p.sources[connectionID]; ok {
		return src, nil
	}
	src := &HTTPSource{
		endpoint: strings.TrimRight(p.cfg.BaseURL, "/") + "/connections/" + url.PathEscape(connectionID) + "/" + p.resource,
		apiKey:   p.cfg.APIKey,
		bearer:   !p.cfg.usesClientCredentials(),
		client:   p.client,
		breaker:  p.breaker,
	}
	p.sources[connectionID] = src
	return src, nil
}

// =============================================================================
// HTTPSource
// =============================================================================

// HTTPSource reads one connection's records with offset pagination:
//
//	GET {endpoint}?offset=N&limit=M -> {"records": [...], "has_more": true, "total": 120}
type HTTPSource struct {
	endpoint string
	apiKey   string
	bearer   bool
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

type pageResponse struct {
	Records []map[string]any `json:"records"`
	HasMore *bool            `json:"has_more"`
	Total   *int             `json:"total"`
}

func (s *HTTPSource) Fetch(ctx context.Context, offset, limit int) (*out.SourcePage, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		return s.fetch(ctx, offset, limit)
	})
	if err != nil {
		if resilience.IsOpen(err) {
			return nil, fmt.Errorf("fetch %s: %w", s.endpoint, err)
		}
		return nil, err
	}
	return result.(*out.SourcePage), nil
}

func (s *HTTPSource) fetch(ctx context.Context, offset, limit int) (*out.SourcePage, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.bearer && s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	page := &out.SourcePage{
		Records: make([]out.RawRecord, 0, len(decoded.Records)),
		Total:   decoded.Total,
	}
	for _, r := range decoded.Records {
		page.Records = append(page.Records, out.RawRecord(r))
	}
	if decoded.HasMore != nil {
		page.HasMore = *decoded.HasMore
	} else {
		// sources without the flag: a full page means there may be more
		page.HasMore = limit > 0 && len(decoded.Records) == limit
	}
	return page, nil
}
