// Package catalog is the client for the data4library open API: holdings
// search by region and per-branch availability.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/library-locator/internal/core/config"
	"github.com/mohammed-shakir/library-locator/internal/core/httpclient"
	"github.com/mohammed-shakir/library-locator/internal/core/model"
	"github.com/mohammed-shakir/library-locator/internal/core/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	OpSearch       = "libSrchByBook"
	OpAvailability = "bookExist"

	upstreamSearch       = "catalog_search"
	upstreamAvailability = "catalog_availability"
)

// ProviderError is a failed catalog call: transport error, non-2xx status
// or an undecodable body. Status is 0 when no response was received.
type ProviderError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Availability is the holding state of one branch.
type Availability struct {
	Present bool
	Loan    model.LoanStatus
}

type Config struct {
	BaseURL             string
	APIKey              string
	SearchTimeout       time.Duration
	AvailabilityTimeout time.Duration
	// RPS <= 0 disables client-side rate limiting.
	RPS   float64
	Burst int
}

type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(cfg Config, hc *http.Client, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("catalog: %w: LIBRARY_API_KEY", config.ErrMissingCredential)
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 50 * time.Second
	}
	if cfg.AvailabilityTimeout <= 0 {
		cfg.AvailabilityTimeout = 3 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if hc == nil {
		hc = httpclient.NewOutbound(cfg.SearchTimeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	lim := rate.NewLimiter(rate.Inf, cfg.Burst)
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	}
	return &Client{cfg: cfg, base: u, http: hc, limiter: lim, logger: logger}, nil
}

type searchResponse struct {
	Response struct {
		Libs []struct {
			Lib struct {
				LibCode   string `json:"libCode"`
				LibName   string `json:"libName"`
				Address   string `json:"address"`
				Tel       string `json:"tel"`
				Latitude  string `json:"latitude"`
				Longitude string `json:"longitude"`
			} `json:"lib"`
		} `json:"libs"`
	} `json:"response"`
}

type existResponse struct {
	Response struct {
		Result *struct {
			HasBook       string `json:"hasBook"`
			LoanAvailable string `json:"loanAvailable"`
		} `json:"result"`
	} `json:"response"`
}

// SearchBySubRegion lists libraries in one district that hold isbn.
func (c *Client) SearchBySubRegion(ctx context.Context, region, subRegion, isbn string) ([]model.Library, error) {
	return c.search(ctx, region, subRegion, isbn)
}

// SearchByRegion lists libraries anywhere in the province that hold isbn.
func (c *Client) SearchByRegion(ctx context.Context, region, isbn string) ([]model.Library, error) {
	return c.search(ctx, region, "", isbn)
}

func (c *Client) search(ctx context.Context, region, subRegion, isbn string) (_ []model.Library, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()

	v := url.Values{}
	v.Set("authKey", c.cfg.APIKey)
	v.Set("isbn", isbn)
	v.Set("region", region)
	if subRegion != "" {
		v.Set("dtl_region", subRegion)
	}
	v.Set("format", "json")

	start := time.Now()
	defer func() { observability.ObserveUpstream(upstreamSearch, err, time.Since(start).Seconds()) }()

	var decoded searchResponse
	if err := c.get(ctx, OpSearch, v, &decoded); err != nil {
		return nil, err
	}

	libs := make([]model.Library, 0, len(decoded.Response.Libs))
	for _, l := range decoded.Response.Libs {
		lib := l.Lib
		libs = append(libs, model.Library{
			Code:      strings.TrimSpace(lib.LibCode),
			Name:      strings.TrimSpace(lib.LibName),
			Address:   strings.TrimSpace(lib.Address),
			Phone:     strings.TrimSpace(lib.Tel),
			Latitude:  strings.TrimSpace(lib.Latitude),
			Longitude: strings.TrimSpace(lib.Longitude),
		})
	}

	c.logger.DebugContext(ctx, "catalog search done",
		"region", region, "sub_region", subRegion, "count", len(libs), "duration", time.Since(start))
	return libs, nil
}

// CheckAvailability asks whether one branch holds isbn and whether a copy
// can be borrowed now. A response without a result means not present.
func (c *Client) CheckAvailability(ctx context.Context, libCode, isbn string) (_ Availability, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AvailabilityTimeout)
	defer cancel()

	v := url.Values{}
	v.Set("authKey", c.cfg.APIKey)
	v.Set("libCode", libCode)
	v.Set("isbn13", isbn)
	v.Set("format", "json")

	start := time.Now()
	defer func() { observability.ObserveUpstream(upstreamAvailability, err, time.Since(start).Seconds()) }()

	var decoded existResponse
	if err := c.get(ctx, OpAvailability, v, &decoded); err != nil {
		return Availability{}, err
	}
	r := decoded.Response.Result
	if r == nil || !strings.EqualFold(strings.TrimSpace(r.HasBook), "Y") {
		return Availability{}, nil
	}
	return Availability{Present: true, Loan: model.ParseLoanStatus(r.LoanAvailable)}, nil
}

func (c *Client) get(ctx context.Context, op string, v url.Values, into any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ProviderError{Op: op, Err: fmt.Errorf("rate limit: %w", err)}
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + op
	u.RawQuery = v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &ProviderError{Op: op, Err: httpclient.Redact(err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Err: httpclient.Redact(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return &ProviderError{Op: op, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(b)))}
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return &ProviderError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
