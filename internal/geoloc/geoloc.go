// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package geoloc resolves client origin addresses to coordinates and
// country codes.
package geoloc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// UnknownCountry is the placeholder code for unresolvable origins.
const UnknownCountry = "XX"

// Location is a resolved client location.
type Location struct {
	Latitude  float32
	Longitude float32
	Country   string // ISO 3166-1 alpha-2
}

// Resolver resolves a network origin address to a location.
type Resolver interface {
	Resolve(ctx context.Context, origin string) (*Location, error)
}

// HTTPResolver queries an ip-geolocation HTTP API.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver against the given API base URL.
// The API is expected to answer GET <baseURL>/<address> with a JSON
// body carrying "loc" ("lat,lon") and "country" fields.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Resolve looks up the origin address, retrying transient failures
// with exponential backoff before giving up.
func (r *HTTPResolver) Resolve(ctx context.Context, origin string) (*Location, error) {
	var body struct {
		Loc     string `json:"loc"`
		Country string `json:"country"`
	}

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+origin, nil)
		if err != nil {
			return err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close() //nolint:errcheck // read-only body

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("geolocation API returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("geolocation API returned %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&body)
	})
	if err != nil {
		return nil, oops.Code("GEOLOC_RESOLVE_FAILED").
			With("origin", origin).
			Wrap(err)
	}

	loc := &Location{Country: body.Country}
	if loc.Country == "" {
		loc.Country = UnknownCountry
	}
	//nolint:errcheck // malformed "loc" leaves coordinates at 0,0
	fmt.Sscanf(body.Loc, "%f,%f", &loc.Latitude, &loc.Longitude)
	return loc, nil
}

// Static always answers with a fixed location. Used when external
// geolocation is disabled.
type Static struct {
	Location Location
}

// Resolve returns the fixed location.
func (s *Static) Resolve(_ context.Context, _ string) (*Location, error) {
	loc := s.Location
	if loc.Country == "" {
		loc.Country = UnknownCountry
	}
	return &loc, nil
}
