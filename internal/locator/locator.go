// Package locator finds libraries near a coordinate that hold a given book.
//
// A query runs as a linear pipeline: resolve the coordinate to region codes,
// search the catalog by sub-region and then region until one returns
// candidates, rank candidates by distance, then verify availability.
package locator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/library-locator/internal/catalog"
	"github.com/mohammed-shakir/library-locator/internal/core/model"
	"github.com/mohammed-shakir/library-locator/internal/core/observability"
)

const DefaultMaxConcurrent = 8

type Mode string

const (
	ModeList    Mode = "list"
	ModeNearest Mode = "nearest"
)

type Resolver interface {
	Resolve(ctx context.Context, p model.Coordinate) (model.RegionCode, error)
}

type Catalog interface {
	SearchBySubRegion(ctx context.Context, region, subRegion, isbn string) ([]model.Library, error)
	SearchByRegion(ctx context.Context, region, isbn string) ([]model.Library, error)
	CheckAvailability(ctx context.Context, libCode, isbn string) (catalog.Availability, error)
}

// Lookup summarizes one completed query for observers.
type Lookup struct {
	Mode     Mode
	ISBN     string
	Origin   model.Coordinate
	Region   model.RegionCode
	Strategy string
	Found    int
	Duration time.Duration
}

type Option func(*Locator)

// WithMaxConcurrent bounds in-flight availability checks in list mode.
func WithMaxConcurrent(n int) Option {
	return func(l *Locator) {
		if n > 0 {
			l.maxConcurrent = n
		}
	}
}

func WithLogger(lg *slog.Logger) Option {
	return func(l *Locator) { l.logger = lg }
}

// WithObserver registers a callback run after every successful query.
func WithObserver(fn func(context.Context, Lookup)) Option {
	return func(l *Locator) { l.observers = append(l.observers, fn) }
}

type Locator struct {
	resolver      Resolver
	catalog       Catalog
	strategies    []strategy
	maxConcurrent int
	logger        *slog.Logger
	observers     []func(context.Context, Lookup)
}

func New(r Resolver, c Catalog, opts ...Option) *Locator {
	l := &Locator{
		resolver:      r,
		catalog:       c,
		strategies:    cascade,
		maxConcurrent: DefaultMaxConcurrent,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

type strategy struct {
	name   string
	search func(ctx context.Context, c Catalog, code model.RegionCode, isbn string) ([]model.Library, error)
}

// cascade is tried in order until a strategy returns candidates.
var cascade = []strategy{
	{
		name: "sub_region",
		search: func(ctx context.Context, c Catalog, code model.RegionCode, isbn string) ([]model.Library, error) {
			return c.SearchBySubRegion(ctx, code.Region, code.SubRegion, isbn)
		},
	},
	{
		name: "region",
		search: func(ctx context.Context, c Catalog, code model.RegionCode, isbn string) ([]model.Library, error) {
			return c.SearchByRegion(ctx, code.Region, isbn)
		},
	},
}

// FindLibrariesWithBook returns every candidate that reports the book
// present, nearest first, each carrying its loan status. Only region
// resolution failures are returned as errors; an empty slice means none.
func (l *Locator) FindLibrariesWithBook(ctx context.Context, isbn string, origin model.Coordinate) ([]model.Library, error) {
	start := time.Now()
	code, strategy, ranked, err := l.candidates(ctx, isbn, origin)
	if err != nil {
		return nil, err
	}

	checked := make([]*model.Library, len(ranked))
	var g errgroup.Group
	g.SetLimit(l.maxConcurrent)
	for i := range ranked {
		g.Go(func() error {
			checked[i] = l.verify(ctx, ranked[i], isbn)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.Library, 0, len(ranked))
	for _, lib := range checked {
		if lib != nil {
			out = append(out, *lib)
		}
	}

	l.logger.InfoContext(ctx, "library search done",
		"isbn", isbn, "region", code.Region, "sub_region", code.SubRegion,
		"candidates", len(ranked), "available", len(out))
	l.notify(ctx, Lookup{
		Mode: ModeList, ISBN: isbn, Origin: origin, Region: code,
		Strategy: strategy, Found: len(out), Duration: time.Since(start),
	})
	return out, nil
}

// FindNearestLibraryWithBook checks only the nearest candidate. When that
// check fails or reports the book absent the result is nil with no error;
// farther candidates are not tried.
func (l *Locator) FindNearestLibraryWithBook(ctx context.Context, isbn string, origin model.Coordinate) (*model.Library, error) {
	start := time.Now()
	code, strategy, ranked, err := l.candidates(ctx, isbn, origin)
	if err != nil {
		return nil, err
	}

	var found *model.Library
	if len(ranked) > 0 {
		found = l.verify(ctx, ranked[0], isbn)
		if found == nil {
			l.logger.InfoContext(ctx, "nearest library does not have book",
				"isbn", isbn, "lib_code", ranked[0].Code, "sub_region", code.SubRegion)
		}
	}

	n := 0
	if found != nil {
		n = 1
	}
	l.notify(ctx, Lookup{
		Mode: ModeNearest, ISBN: isbn, Origin: origin, Region: code,
		Strategy: strategy, Found: n, Duration: time.Since(start),
	})
	return found, nil
}

func (l *Locator) candidates(ctx context.Context, isbn string, origin model.Coordinate) (model.RegionCode, string, []model.Library, error) {
	code, err := l.resolver.Resolve(ctx, origin)
	if err != nil {
		return model.RegionCode{}, "", nil, err
	}
	libs, strategy := l.search(ctx, code, isbn)
	return code, strategy, Rank(origin, libs), nil
}

// search runs the cascade. A failing strategy counts as empty.
func (l *Locator) search(ctx context.Context, code model.RegionCode, isbn string) ([]model.Library, string) {
	for _, s := range l.strategies {
		libs, err := s.search(ctx, l.catalog, code, isbn)
		switch {
		case err != nil:
			observability.IncSearchStrategy(s.name, "error")
			l.logger.WarnContext(ctx, "catalog search failed",
				"strategy", s.name, "region", code.Region, "sub_region", code.SubRegion, "error", err)
			continue
		case len(libs) == 0:
			observability.IncSearchStrategy(s.name, "empty")
			l.logger.InfoContext(ctx, "catalog search empty",
				"strategy", s.name, "region", code.Region, "sub_region", code.SubRegion)
			continue
		}
		observability.IncSearchStrategy(s.name, "found")
		return libs, s.name
	}
	return nil, ""
}

// verify returns a copy of lib with its loan status, or nil when the check
// failed or the branch does not hold the book.
func (l *Locator) verify(ctx context.Context, lib model.Library, isbn string) *model.Library {
	av, err := l.catalog.CheckAvailability(ctx, lib.Code, isbn)
	if err != nil {
		observability.IncAvailability("error")
		l.logger.DebugContext(ctx, "availability check failed", "lib_code", lib.Code, "error", err)
		return nil
	}
	if !av.Present {
		observability.IncAvailability("absent")
		return nil
	}
	observability.IncAvailability("present")
	lib.LoanAvailable = av.Loan
	return &lib
}

func (l *Locator) notify(ctx context.Context, lk Lookup) {
	for _, fn := range l.observers {
		fn(ctx, lk)
	}
}
