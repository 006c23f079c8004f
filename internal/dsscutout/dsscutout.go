// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package dsscutout fetches a reference survey cutout (e.g. from STScI's
// Digitized Sky Survey cutout service) for side-by-side comparison against
// a candidate detection. Out of core scope: a thin interface with a single
// HTTP-backed implementation, not wired into the default pipeline run.
package dsscutout

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetcher retrieves a survey cutout image centered on (ra, dec), rotated by
// rotation degrees, sized to match the candidate's field of view.
type Fetcher interface {
	Fetch(ctx context.Context, ra, dec, rotation float64) ([]byte, error)
}

// HTTPFetcher queries a DSS cutout service over HTTP.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher returns a fetcher against baseURL using http.DefaultClient.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{BaseURL: baseURL, Client: http.DefaultClient}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ra, dec, rotation float64) ([]byte, error) {
	url := fmt.Sprintf("%s?ra=%f&dec=%f&rotation=%f", f.BaseURL, ra, dec, rotation)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dsscutout: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dsscutout: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dsscutout: %s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
