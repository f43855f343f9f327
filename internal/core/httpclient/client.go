// Package httpclient configures the HTTP client used to call upstream providers.
package httpclient

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"
)

// NewOutbound creates the shared outbound client. timeout is a ceiling;
// callers apply tighter per-call deadlines through the request context.
func NewOutbound(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Redact strips the query string from a *url.Error so API keys passed as
// query parameters never reach logs or callers.
func Redact(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	cp := *ue
	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery = ""
		u.User = nil
		cp.URL = u.String()
	} else {
		cp.URL = "<redacted>"
	}
	return &cp
}

// RedactURL renders u without its query string.
func RedactURL(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	cp.User = nil
	return cp.String()
}
