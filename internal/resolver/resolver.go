// Package resolver turns a coordinate into catalog region codes through the
// geocoder, remembering the last answer for nearby, recent requests.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/library-locator/internal/core/model"
	"github.com/mohammed-shakir/library-locator/internal/core/observability"
	"github.com/mohammed-shakir/library-locator/internal/geo"
	"github.com/mohammed-shakir/library-locator/internal/region"
)

const (
	DefaultCacheTTL     = 30 * time.Minute
	DefaultCacheRadiusM = 100.0
)

const (
	ReasonGeocoder    = "geocoder unavailable"
	ReasonUnknown     = "unknown region"
	ReasonInvalidCode = "invalid code"
)

// ResolutionError means no region codes could be produced for a coordinate.
type ResolutionError struct {
	Reason  string
	Address string
	Err     error
}

func (e *ResolutionError) Error() string {
	msg := "resolve region: " + e.Reason
	if e.Address != "" {
		msg += fmt.Sprintf(" (%q)", e.Address)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

type Geocoder interface {
	LookupDistrict(ctx context.Context, p model.Coordinate) (model.AdminArea, error)
}

type Option func(*Resolver)

func WithCacheTTL(d time.Duration) Option {
	return func(r *Resolver) { r.ttl = d }
}

func WithCacheRadius(meters float64) Option {
	return func(r *Resolver) { r.radius = meters }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// slot is the single cached resolution.
type slot struct {
	code       model.RegionCode
	resolvedAt time.Time
	source     model.Coordinate
}

type Resolver struct {
	geo    Geocoder
	table  *region.Table
	ttl    time.Duration
	radius float64
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	cache *slot
}

func New(g Geocoder, table *region.Table, opts ...Option) *Resolver {
	if table == nil {
		table = region.Default()
	}
	r := &Resolver{
		geo:    g,
		table:  table,
		ttl:    DefaultCacheTTL,
		radius: DefaultCacheRadiusM,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the region codes for p. Failures are *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, p model.Coordinate) (model.RegionCode, error) {
	if code, ok := r.cached(p); ok {
		observability.IncRegionCache("hit")
		r.logger.DebugContext(ctx, "region cache hit", "region", code.Region, "sub_region", code.SubRegion)
		return code, nil
	}
	observability.IncRegionCache("miss")

	area, err := r.geo.LookupDistrict(ctx, p)
	if err != nil {
		return model.RegionCode{}, &ResolutionError{Reason: ReasonGeocoder, Err: err}
	}

	code, ok := r.table.CodeFromAddress(area.FullName)
	if !ok {
		return model.RegionCode{}, &ResolutionError{Reason: ReasonUnknown, Address: area.FullName}
	}
	if !region.Validate(code) {
		return model.RegionCode{}, &ResolutionError{Reason: ReasonInvalidCode, Address: area.FullName}
	}

	r.store(slot{code: code, resolvedAt: r.now(), source: p})

	r.logger.InfoContext(ctx, "region resolved",
		"address", area.FullName, "region", code.Region, "sub_region", code.SubRegion)
	return code, nil
}

func (r *Resolver) cached(p model.Coordinate) (model.RegionCode, bool) {
	r.mu.Lock()
	s := r.cache
	r.mu.Unlock()

	if s == nil {
		return model.RegionCode{}, false
	}
	if r.now().Sub(s.resolvedAt) > r.ttl {
		return model.RegionCode{}, false
	}
	if geo.Distance(p, s.source) > r.radius {
		return model.RegionCode{}, false
	}
	return s.code, true
}

// store overwrites the slot; the last writer wins under concurrent misses.
func (r *Resolver) store(s slot) {
	r.mu.Lock()
	r.cache = &s
	r.mu.Unlock()
}
