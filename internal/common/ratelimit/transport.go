package ratelimit

import (
	"net/http"
	"time"
)

// Transport acquires a token for Key before every request it forwards to Base.
type Transport struct {
	Base    http.RoundTripper
	Limiter Acquirer
	Key     string
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Acquire(req.Context(), t.Key); err != nil {
			if req.Body != nil {
				req.Body.Close()
			}
			return nil, err
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewHTTPClient returns an http.Client whose every request goes through limiter under key.
func NewHTTPClient(limiter Acquirer, key string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Limiter: limiter, Key: key},
	}
}
