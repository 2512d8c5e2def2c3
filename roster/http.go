// Copyright 2026 Clanwatch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBytes limits JSON API responses to 10 MiB to prevent
// OOM from a malicious or misconfigured upstream.
const maxResponseBytes = 10 << 20

// HTTPProvider is a Provider backed by the upstream clan REST API. All
// response decoding goes through the candidate extractor tables in this
// package, so upstream shape churn stays contained here.
type HTTPProvider struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// HTTPProviderOption is a functional option for configuring an HTTPProvider
type HTTPProviderOption func(*HTTPProvider)

// WithHTTPClient sets a custom *http.Client for the provider
func WithHTTPClient(hc *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) {
		if hc != nil {
			p.httpClient = hc
		}
	}
}

// WithAPIToken sets the bearer token sent with every request
func WithAPIToken(token string) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.apiToken = token
	}
}

// NewHTTPProvider creates a new upstream API provider. The baseURL should
// be the root of the API (e.g. "https://api.example.com/v1").
func NewHTTPProvider(
	baseURL string,
	opts ...HTTPProviderOption,
) *HTTPProvider {
	p := &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchRoster retrieves the current clan member list.
// Corresponds to GET /clans/{tag}/members.
func (p *HTTPProvider) FetchRoster(
	ctx context.Context,
	clanTag string,
) ([]RosterEntry, error) {
	reqURL := p.baseURL + "/clans/" + url.PathEscape(clanTag) + "/members"
	body, err := p.doGet(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("fetching roster: %w", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading roster response: %w", err)
	}
	return DecodeRoster(data)
}

// FetchCurrentSnapshot retrieves the current-period activity snapshot.
// Corresponds to GET /clans/{tag}/currentriverrace.
func (p *HTTPProvider) FetchCurrentSnapshot(
	ctx context.Context,
	clanTag string,
) (*Snapshot, error) {
	reqURL := p.baseURL + "/clans/" + url.PathEscape(clanTag) + "/currentriverrace"
	body, err := p.doGet(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("fetching current snapshot: %w", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot response: %w", err)
	}
	return DecodeSnapshot(data, time.Now())
}

func (p *HTTPProvider) doGet(
	ctx context.Context,
	reqURL string,
) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		reqURL,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp == nil || resp.Body == nil {
		return nil, errors.New("nil response from server")
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(
			io.LimitReader(resp.Body, 1024),
		)
		return nil, fmt.Errorf(
			"unexpected status %d: %s",
			resp.StatusCode,
			string(bodyBytes),
		)
	}

	return &limitedReadCloser{
		Reader: io.LimitReader(resp.Body, maxResponseBytes),
		Closer: resp.Body,
	}, nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}
