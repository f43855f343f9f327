// Package geocoder calls the VWorld data API to find the administrative
// district containing a coordinate.
package geocoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
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

// ErrNoFeature is returned when the provider has no district at the point.
var ErrNoFeature = errors.New("no administrative feature at point")

const upstream = "geocoder"

type Config struct {
	BaseURL string
	APIKey  string
	Domain  string
	Layer   string
	Timeout time.Duration
	// RPS <= 0 disables client-side rate limiting.
	RPS float64
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
		return nil, fmt.Errorf("geocoder: %w: VWORLD_API_KEY", config.ErrMissingCredential)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse geocoder url: %w", err)
	}
	if cfg.Layer == "" {
		cfg.Layer = "LT_C_ADSIGG_INFO"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if hc == nil {
		hc = httpclient.NewOutbound(cfg.Timeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Client{cfg: cfg, base: u, http: hc, limiter: lim, logger: logger}, nil
}

type featureResponse struct {
	Response struct {
		Status string `json:"status"`
		Error  *struct {
			Code string `json:"code"`
			Text string `json:"text"`
		} `json:"error"`
		Result *struct {
			FeatureCollection struct {
				Features []struct {
					Properties struct {
						FullName string `json:"full_nm"`
						Name     string `json:"sig_kor_nm"`
						Code     string `json:"sig_cd"`
					} `json:"properties"`
				} `json:"features"`
			} `json:"featureCollection"`
		} `json:"result"`
	} `json:"response"`
}

func (c *Client) params(p model.Coordinate) url.Values {
	v := url.Values{}
	v.Set("service", "data")
	v.Set("request", "GetFeature")
	v.Set("data", c.cfg.Layer)
	v.Set("key", c.cfg.APIKey)
	if c.cfg.Domain != "" {
		v.Set("domain", c.cfg.Domain)
	}
	v.Set("format", "json")
	v.Set("crs", "EPSG:4326")
	v.Set("geomFilter", fmt.Sprintf("POINT(%s %s)", formatDeg(p.Lon), formatDeg(p.Lat)))
	v.Set("geometry", "false")
	v.Set("attribute", "true")
	v.Set("size", "1")
	return v
}

// LookupDistrict returns the properties of the single district polygon
// containing p.
func (c *Client) LookupDistrict(ctx context.Context, p model.Coordinate) (_ model.AdminArea, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return model.AdminArea{}, fmt.Errorf("geocoder rate limit: %w", err)
	}

	start := time.Now()
	defer func() { observability.ObserveUpstream(upstream, err, time.Since(start).Seconds()) }()

	u := *c.base
	u.RawQuery = c.params(p).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.AdminArea{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.AdminArea{}, fmt.Errorf("geocoder request: %w", httpclient.Redact(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return model.AdminArea{}, fmt.Errorf("geocoder status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded featureResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return model.AdminArea{}, fmt.Errorf("decode geocoder response: %w", err)
	}

	r := decoded.Response
	if strings.EqualFold(r.Status, "ERROR") {
		msg := "unknown error"
		if r.Error != nil {
			msg = strings.TrimSpace(r.Error.Code + " " + r.Error.Text)
		}
		return model.AdminArea{}, fmt.Errorf("geocoder error: %s", msg)
	}
	if r.Result == nil || len(r.Result.FeatureCollection.Features) == 0 {
		return model.AdminArea{}, ErrNoFeature
	}

	props := r.Result.FeatureCollection.Features[0].Properties
	area := model.AdminArea{
		FullName: strings.TrimSpace(props.FullName),
		Name:     strings.TrimSpace(props.Name),
		Code:     strings.TrimSpace(props.Code),
	}
	if area.FullName == "" {
		return model.AdminArea{}, fmt.Errorf("geocoder feature has no full_nm: %w", ErrNoFeature)
	}

	c.logger.DebugContext(ctx, "geocoder lookup done",
		"address", area.FullName, "sig_cd", area.Code, "duration", time.Since(start))
	return area, nil
}

func formatDeg(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
