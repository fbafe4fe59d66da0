// Package geoip resolves a client IP to a coarse location via the
// ipinfo.io HTTP API. Lookups are best effort; callers log failures and
// carry on without a location.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
)

// ErrLocalAddress marks loopback and private addresses, which the upstream
// API cannot place anywhere meaningful.
var ErrLocalAddress = fmt.Errorf("geoip: local address")

type Resolver interface {
	Resolve(ctx context.Context, ip string) (domain.Location, error)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "https://ipinfo.io"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Resolve(ctx context.Context, ip string) (domain.Location, error) {
	if isLocal(ip) {
		return domain.Location{}, ErrLocalAddress
	}

	u := fmt.Sprintf("%s/%s?token=%s", c.baseURL, url.PathEscape(ip), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Location{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Location{}, fmt.Errorf("geoip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Location{}, fmt.Errorf("geoip: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		City    string `json:"city"`
		Region  string `json:"region"`
		Country string `json:"country"`
		Loc     string `json:"loc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Location{}, fmt.Errorf("geoip: decode: %w", err)
	}

	return domain.Location{
		City:    payload.City,
		Region:  payload.Region,
		Country: payload.Country,
		Coords:  payload.Loc,
	}, nil
}

func isLocal(ip string) bool {
	if ip == "::1" || ip == "127.0.0.1" || ip == "localhost" || ip == "" {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified()
}

var _ Resolver = (*Client)(nil)
