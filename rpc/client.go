// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/frontierlabs/indexer/blockchain"
)

// Client is a thin HTTP client for the query API, used by the CLI.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the server at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		baseURL:    "http://" + addr,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Account fetches the best-tip state of an account.
func (c *Client) Account(publicKey string) (*AccountResponse, error) {
	var resp AccountResponse
	if err := c.get("/v1/account/"+url.PathEscape(publicKey), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BestChain fetches up to limit blocks of the best chain, ascending. A zero
// limit fetches the whole chain.
func (c *Client) BestChain(limit int) (*BestChainResponse, error) {
	path := "/v1/best-chain"
	if limit != defaultBestChainLimit {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var resp BestChainResponse
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Summary fetches the chain summary.
func (c *Client) Summary() (*blockchain.SummaryInfo, error) {
	var resp blockchain.SummaryInfo
	if err := c.get("/v1/summary", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(path string, out interface{}) error {
	httpResp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return err
	}
	if httpResp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server returned %d: %s", httpResp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server returned %d", httpResp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
