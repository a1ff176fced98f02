package aur

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultRPCURL = "https://aur.archlinux.org/rpc/"
	packageURL    = "https://aur.archlinux.org/packages/"
	userAgent     = "asmctl/1.0"
)

// Package is structured AUR package info from the RPC v5 API
type Package struct {
	Name        string  `json:"Name"`
	PackageBase string  `json:"PackageBase"`
	Description string  `json:"Description"`
	Version     string  `json:"Version"`
	Votes       int     `json:"NumVotes"`
	Popularity  float64 `json:"Popularity"`
	Maintainer  string  `json:"Maintainer"`
	URL         string  `json:"URL"`
	OutOfDate   *int64  `json:"OutOfDate"`
}

// PageURL returns the package's AUR web page
func (p Package) PageURL() string {
	return packageURL + p.Name
}

type rpcResponse struct {
	Type    string    `json:"type"`
	Error   string    `json:"error"`
	Results []Package `json:"results"`
}

// Client queries the AUR RPC v5 API. Read-only; installations go
// through an AUR helper instead.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client with a 15s request timeout
func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultRPCURL,
	}
}

// NewClientWithURL creates a Client against a custom RPC endpoint (tests)
func NewClientWithURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

// Search finds AUR packages matching the query. by selects the search
// field: "name", "name-desc" or "maintainer".
func (c *Client) Search(ctx context.Context, query, by string) ([]Package, error) {
	if by == "" {
		by = "name-desc"
	}
	params := url.Values{}
	params.Set("v", "5")
	params.Set("type", "search")
	params.Set("by", by)
	params.Set("arg", query)
	return c.fetch(ctx, params)
}

// Info retrieves detailed info for specific packages
func (c *Client) Info(ctx context.Context, names ...string) ([]Package, error) {
	if len(names) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("v", "5")
	params.Set("type", "info")
	for _, n := range names {
		params.Add("arg[]", n)
	}
	return c.fetch(ctx, params)
}

func (c *Client) fetch(ctx context.Context, params url.Values) ([]Package, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build AUR request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("AUR request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AUR RPC returned status %d", resp.StatusCode)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, fmt.Errorf("decode AUR response: %w", err)
	}
	if rpc.Type == "error" {
		return nil, fmt.Errorf("AUR RPC error: %s", rpc.Error)
	}
	return rpc.Results, nil
}
