// Package marketplace is the HTTP client for the listing and matching
// service that owns listings, matches and merchant statistics.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketbot/internal/domain"
)

// ErrMissingField means the service answered 2xx without the key the caller
// depends on.
var ErrMissingField = errors.New("marketplace response missing field")

// Client implements domain.Marketplace over JSON/HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

type Config struct {
	BaseURL string
	APIKey  string // sent as a bearer token when set
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    cfg.Client,
		logger:  cfg.Logger,
	}
}

// CreateListing posts a new listing and returns the stored object, which
// always carries listingId.
func (c *Client) CreateListing(ctx context.Context, draft domain.ListingDraft) (domain.Listing, error) {
	var out domain.Listing
	if err := c.do(ctx, http.MethodPost, "/listings", nil, draft, &out); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	if out.ID() == "" {
		return nil, fmt.Errorf("create listing: %w: listingId", ErrMissingField)
	}
	return out, nil
}

type matchesResponse struct {
	Matches []domain.Match `json:"matches"`
}

func (c *Client) FindMatches(ctx context.Context, listingID string, maxResults int, minScore decimal.Decimal) ([]domain.Match, error) {
	q := url.Values{}
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("minScore", minScore.String())

	var out matchesResponse
	if err := c.do(ctx, http.MethodGet, "/listings/"+url.PathEscape(listingID)+"/matches", q, nil, &out); err != nil {
		return nil, fmt.Errorf("find matches %s: %w", listingID, err)
	}
	matches := make([]domain.Match, 0, len(out.Matches))
	for _, m := range out.Matches {
		if m != nil {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

func (c *Client) SearchListings(ctx context.Context, sq domain.SearchQuery) (domain.SearchPage, error) {
	q := url.Values{}
	if sq.Keyword != "" {
		q.Set("keyword", sq.Keyword)
	}
	if sq.Category != "" {
		q.Set("category", sq.Category)
	}
	if sq.ListingType != "" {
		q.Set("listingType", sq.ListingType)
	}
	if sq.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(sq.PageSize))
	}

	var out domain.SearchPage
	if err := c.do(ctx, http.MethodGet, "/listings", q, nil, &out); err != nil {
		return domain.SearchPage{}, fmt.Errorf("search listings: %w", err)
	}
	return out, nil
}

type listingsResponse struct {
	Listings []domain.Listing `json:"listings"`
}

// MerchantListings returns the merchant's listings, most recently updated
// first.
func (c *Client) MerchantListings(ctx context.Context, merchantID, status string, limit int) ([]domain.Listing, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out listingsResponse
	if err := c.do(ctx, http.MethodGet, "/merchants/"+url.PathEscape(merchantID)+"/listings", q, nil, &out); err != nil {
		return nil, fmt.Errorf("merchant listings %s: %w", merchantID, err)
	}
	return out.Listings, nil
}

func (c *Client) Stats(ctx context.Context, merchantID string) (map[string]any, error) {
	q := url.Values{}
	if merchantID != "" {
		q.Set("merchantId", merchantID)
	}
	out := map[string]any{}
	if err := c.do(ctx, http.MethodGet, "/stats", q, nil, &out); err != nil {
		return nil, fmt.Errorf("marketplace stats: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	c.logger.Debug("marketplace call", "method", method, "path", path, "status", resp.StatusCode, "latency_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, body)
}
