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

// Package scanner discovers observation files available for download from a
// remote directory listing.
package scanner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// Entry is one file found at a scanned location.
type Entry struct {
	Name string
	URL  string
}

// Scanner lists the observation files available at a remote location.
type Scanner interface {
	List(ctx context.Context, url string) ([]Entry, error)
}

// hrefPattern matches Apache/nginx-style autoindex rows: <a href="name">.
// No HTML parsing library exists anywhere in the example pack, so this is
// one of the few intentionally stdlib-only pieces of the system.
var hrefPattern = regexp.MustCompile(`(?i)<a\s+href="([^"?/][^"]*)"`)

// HTTPDirectoryScanner lists a plain HTTP directory index.
type HTTPDirectoryScanner struct {
	Client *http.Client
}

// NewHTTPDirectoryScanner returns a scanner using http.DefaultClient.
func NewHTTPDirectoryScanner() *HTTPDirectoryScanner {
	return &HTTPDirectoryScanner{Client: http.DefaultClient}
}

// List fetches url and parses its autoindex-style href rows into entries.
func (s *HTTPDirectoryScanner) List(ctx context.Context, url string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scanner: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scanner: %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scanner: reading %s: %w", url, err)
	}

	matches := hrefPattern.FindAllStringSubmatch(string(body), -1)
	entries := make([]Entry, 0, len(matches))
	base := strings.TrimSuffix(url, "/")
	for _, m := range matches {
		name := m[1]
		entries = append(entries, Entry{Name: name, URL: base + "/" + name})
	}
	return entries, nil
}
