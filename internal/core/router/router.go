// Package router parses and validates library lookup requests and renders
// their results.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/mohammed-shakir/library-locator/internal/cache/keys"
	"github.com/mohammed-shakir/library-locator/internal/core/model"
	"github.com/mohammed-shakir/library-locator/internal/core/observability"
	mylog "github.com/mohammed-shakir/library-locator/internal/logger"
	"github.com/mohammed-shakir/library-locator/internal/mapper"
	"github.com/mohammed-shakir/library-locator/internal/resolver"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	RouteLibraries = "/libraries"
	RouteNearest   = "/libraries/nearest"
)

// Finder runs the two lookup modes.
type Finder interface {
	FindLibrariesWithBook(ctx context.Context, isbn string, origin model.Coordinate) ([]model.Library, error)
	FindNearestLibraryWithBook(ctx context.Context, isbn string, origin model.Coordinate) (*model.Library, error)
}

// Query is a validated lookup request, echoed back in responses.
type Query struct {
	ISBN      string  `json:"isbn"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (q Query) Coordinate() model.Coordinate {
	return model.Coordinate{Lat: q.Latitude, Lon: q.Longitude}
}

type listResponse struct {
	Query     Query           `json:"query"`
	Count     int             `json:"count"`
	Libraries []model.Library `json:"libraries"`
}

type nearestResponse struct {
	Query   Query          `json:"query"`
	Found   bool           `json:"found"`
	Library *model.Library `json:"library"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type Handlers struct {
	Logger *slog.Logger
	Finder Finder
	// Cells, when set, adds the request's H3 cell at CellRes to the log context.
	Cells   mapper.Interface
	CellRes int
}

func (h *Handlers) Libraries() http.HandlerFunc {
	return h.serve(RouteLibraries, func(ctx context.Context, q Query) (any, error) {
		libs, err := h.Finder.FindLibrariesWithBook(ctx, q.ISBN, q.Coordinate())
		if err != nil {
			return nil, err
		}
		if libs == nil {
			libs = []model.Library{}
		}
		return listResponse{Query: q, Count: len(libs), Libraries: libs}, nil
	})
}

func (h *Handlers) Nearest() http.HandlerFunc {
	return h.serve(RouteNearest, func(ctx context.Context, q Query) (any, error) {
		lib, err := h.Finder.FindNearestLibraryWithBook(ctx, q.ISBN, q.Coordinate())
		if err != nil {
			return nil, err
		}
		return nearestResponse{Query: q, Found: lib != nil, Library: lib}, nil
	})
}

func (h *Handlers) serve(route string, run func(context.Context, Query) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
		}()

		q, err := ParseQuery(r)
		if err != nil {
			writeError(sw, http.StatusBadRequest, err)
			return
		}

		ctx := r.Context()
		if h.Cells != nil {
			if cell, err := h.Cells.CellForPoint(q.Coordinate(), h.CellRes); err == nil {
				ctx = mylog.WithCell(ctx, cell)
			}
		}

		body, err := run(ctx, q)
		if err != nil {
			status := statusFor(err)
			h.logger().WarnContext(ctx, "lookup failed", "route", route, "isbn", q.ISBN, "status", status, "error", err)
			writeError(sw, status, err)
			return
		}
		writeJSON(sw, http.StatusOK, body)
	}
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func statusFor(err error) int {
	var re *resolver.ResolutionError
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &re):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	writeJSON(w, status, resp)
}

// ParseQuery validates isbn, latitude and longitude. Failures are
// *model.ValidationError.
func ParseQuery(r *http.Request) (Query, error) {
	v := r.URL.Query()

	isbn, err := parseISBN(v.Get("isbn"))
	if err != nil {
		return Query{}, err
	}
	lat, err := parseDegrees("latitude", v.Get("latitude"))
	if err != nil {
		return Query{}, err
	}
	lon, err := parseDegrees("longitude", v.Get("longitude"))
	if err != nil {
		return Query{}, err
	}
	q := Query{ISBN: isbn, Latitude: lat, Longitude: lon}
	if err := q.Coordinate().Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// parseISBN accepts 13 digits, or 10 characters whose last may be X, with
// hyphens and spaces ignored.
func parseISBN(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &model.ValidationError{Field: "isbn", Reason: "is required"}
	}
	for _, r := range raw {
		if !(r >= '0' && r <= '9') && r != 'x' && r != 'X' && r != '-' && r != ' ' {
			return "", &model.ValidationError{Field: "isbn", Reason: "must contain only digits"}
		}
	}
	isbn := keys.NormalizeISBN(raw)
	switch len(isbn) {
	case 13:
		if strings.ContainsRune(isbn, 'X') {
			return "", &model.ValidationError{Field: "isbn", Reason: "ISBN-13 must be all digits"}
		}
	case 10:
		if i := strings.IndexRune(isbn, 'X'); i >= 0 && i != 9 {
			return "", &model.ValidationError{Field: "isbn", Reason: "X is only allowed as the ISBN-10 check digit"}
		}
	default:
		return "", &model.ValidationError{Field: "isbn", Reason: fmt.Sprintf("must have 10 or 13 digits (got %d)", len(isbn))}
	}
	return isbn, nil
}

func parseDegrees(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &model.ValidationError{Field: field, Reason: "is required"}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &model.ValidationError{Field: field, Reason: "must be a number"}
	}
	return f, nil
}
