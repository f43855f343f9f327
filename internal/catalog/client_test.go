package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammed-shakir/library-locator/internal/core/config"
	"github.com/mohammed-shakir/library-locator/internal/core/model"
)

const twoLibs = `{"response":{"request":{"isbn":"9788936434120"},"numFound":2,"libs":[
{"lib":{"libCode":"111042","libName":"노원정보도서관","address":"서울특별시 노원구 노원로 34","tel":"02-950-0029","latitude":"37.6426","longitude":"127.0680"}},
{"lib":{"libCode":"111314","libName":"상계도서관","address":"서울특별시 노원구 한글비석로 1","tel":"02-951-0001","latitude":" 37.6601 ","longitude":"127.0712"}}]}}`

func newTestClient(t *testing.T, h http.HandlerFunc, mod ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := Config{
		BaseURL:             srv.URL + "/api/",
		APIKey:              "SECRET",
		SearchTimeout:       time.Second,
		AvailabilityTimeout: time.Second,
	}
	for _, m := range mod {
		m(&cfg)
	}
	c, err := New(cfg, srv.Client(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSearchBySubRegion_SendsQueryAndMapsLibraries(t *testing.T) {
	var got url.Values
	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got, path = r.URL.Query(), r.URL.Path
		_, _ = w.Write([]byte(twoLibs))
	})

	libs, err := c.SearchBySubRegion(context.Background(), "11", "11110", "9788936434120")
	if err != nil {
		t.Fatalf("SearchBySubRegion: %v", err)
	}
	if path != "/api/libSrchByBook" {
		t.Fatalf("path=%q", path)
	}
	expect := map[string]string{
		"authKey":    "SECRET",
		"isbn":       "9788936434120",
		"region":     "11",
		"dtl_region": "11110",
		"format":     "json",
	}
	for k, v := range expect {
		if got.Get(k) != v {
			t.Fatalf("param %s=%q want %q", k, got.Get(k), v)
		}
	}

	if len(libs) != 2 {
		t.Fatalf("len=%d", len(libs))
	}
	want := model.Library{
		Code: "111042", Name: "노원정보도서관", Address: "서울특별시 노원구 노원로 34",
		Phone: "02-950-0029", Latitude: "37.6426", Longitude: "127.0680",
	}
	if libs[0].Code != want.Code || libs[0].Name != want.Name || libs[0].Phone != want.Phone ||
		libs[0].Latitude != want.Latitude || libs[0].Longitude != want.Longitude {
		t.Fatalf("lib[0]=%+v", libs[0])
	}
	if libs[1].Latitude != "37.6601" {
		t.Fatalf("coordinates should be trimmed: %q", libs[1].Latitude)
	}
}

func TestSearchByRegion_OmitsSubRegion(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`{"response":{}}`))
	})

	libs, err := c.SearchByRegion(context.Background(), "11", "9788936434120")
	if err != nil {
		t.Fatalf("SearchByRegion: %v", err)
	}
	if len(libs) != 0 {
		t.Fatalf("missing libs key should be empty, got %v", libs)
	}
	if _, ok := got["dtl_region"]; ok {
		t.Fatalf("dtl_region must not be sent: %v", got)
	}
	if got.Get("region") != "11" {
		t.Fatalf("region=%q", got.Get("region"))
	}
}

func TestSearch_ProviderErrors(t *testing.T) {
	cases := []struct {
		name   string
		h      http.HandlerFunc
		status int
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}, http.StatusTooManyRequests},
		{"decode", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.h)
			_, err := c.SearchBySubRegion(context.Background(), "11", "11110", "9788936434120")
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("want *ProviderError, got %T %v", err, err)
			}
			if pe.Op != OpSearch || pe.Status != tc.status {
				t.Fatalf("pe=%+v", pe)
			}
			if strings.Contains(err.Error(), "SECRET") {
				t.Fatalf("api key leaked: %v", err)
			}
		})
	}
}

func TestSearch_TimeoutRedactsKey(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}, func(cfg *Config) { cfg.SearchTimeout = 50 * time.Millisecond })

	_, err := c.SearchByRegion(context.Background(), "11", "9788936434120")
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Status != 0 {
		t.Fatalf("want transport ProviderError, got %v", err)
	}
	if strings.Contains(err.Error(), "SECRET") || strings.Contains(err.Error(), "authKey") {
		t.Fatalf("query leaked: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d, no retries expected", calls.Load())
	}
}

func TestCheckAvailability(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Availability
	}{
		{"available", `{"response":{"result":{"hasBook":"Y","loanAvailable":"Y"}}}`, Availability{Present: true, Loan: model.LoanAvailable}},
		{"on loan", `{"response":{"result":{"hasBook":"Y","loanAvailable":"N"}}}`, Availability{Present: true, Loan: model.LoanUnavailable}},
		{"odd loan flag", `{"response":{"result":{"hasBook":"Y","loanAvailable":""}}}`, Availability{Present: true, Loan: model.LoanUnknown}},
		{"absent", `{"response":{"result":{"hasBook":"N","loanAvailable":"N"}}}`, Availability{}},
		{"no result", `{"response":{}}`, Availability{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got url.Values
			var path string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				got, path = r.URL.Query(), r.URL.Path
				_, _ = w.Write([]byte(tc.body))
			})
			av, err := c.CheckAvailability(context.Background(), "111042", "9788936434120")
			if err != nil {
				t.Fatalf("CheckAvailability: %v", err)
			}
			if av != tc.want {
				t.Fatalf("got %+v want %+v", av, tc.want)
			}
			if path != "/api/bookExist" || got.Get("libCode") != "111042" || got.Get("isbn13") != "9788936434120" {
				t.Fatalf("path=%q query=%v", path, got)
			}
		})
	}
}

func TestCheckAvailability_UsesShortTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, func(cfg *Config) { cfg.AvailabilityTimeout = 30 * time.Millisecond })

	start := time.Now()
	_, err := c.CheckAvailability(context.Background(), "111042", "9788936434120")
	if err == nil {
		t.Fatal("expected timeout")
	}
	if el := time.Since(start); el > 500*time.Millisecond {
		t.Fatalf("took %v, availability timeout not applied", el)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{BaseURL: "http://example.org"}, nil, nil)
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Fatalf("want ErrMissingCredential, got %v", err)
	}
}
