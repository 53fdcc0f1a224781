package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/coti-io/coti-explorer-api-sub000/index"
)

var ErrServiceUnavailable = errors.New("service is unavailable")

const defaultRequestTimeout = 10 * time.Second

// NodeTotals is the node-manager view of one node.
type NodeTotals struct {
	Version       *string  `json:"version"`
	FeePercentage *float64 `json:"feePercentage"`
	FeeMinimum    *float64 `json:"feeMinimum"`
	FeeMaximum    *float64 `json:"feeMaximum"`
	Uptime        *float64 `json:"uptime"`
}

type nodesResponse struct {
	Nodes []index.Node `json:"nodes"`
}

// httpClient issues GET requests with a deadline taken from ctx and tracks
// whether the last request reached the service.
type httpClient struct {
	base    string
	client  *fasthttp.Client
	timeout time.Duration
	healthy atomic.Bool
}

func newHTTPClient(base string, client *fasthttp.Client) *httpClient {
	if client == nil {
		client = &fasthttp.Client{
			MaxConnsPerHost: 32,
			ReadTimeout:     defaultRequestTimeout,
			WriteTimeout:    defaultRequestTimeout,
		}
	}
	c := &httpClient{base: base, client: client, timeout: defaultRequestTimeout}
	c.healthy.Store(true)
	return c
}

func (c *httpClient) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *httpClient) getJSON(ctx context.Context, dst any, path ...string) error {
	uri, err := url.JoinPath(c.base, path...)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		c.healthy.Store(false)
		return errors.Join(ErrServiceUnavailable, err)
	}
	c.healthy.Store(true)
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", uri, code)
	}
	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return fmt.Errorf("GET %s: %w", uri, err)
	}
	return nil
}

// NodeManagerClient reads the node list and per-node totals.
type NodeManagerClient struct {
	*httpClient
}

func NewNodeManagerClient(base string, client *fasthttp.Client) *NodeManagerClient {
	return &NodeManagerClient{newHTTPClient(base, client)}
}

func (c *NodeManagerClient) Nodes(ctx context.Context) ([]index.Node, error) {
	var res nodesResponse
	if err := c.getJSON(ctx, &res, "nodes"); err != nil {
		return nil, err
	}
	return res.Nodes, nil
}

func (c *NodeManagerClient) NodeTotals(ctx context.Context, hash index.HashType) (NodeTotals, error) {
	var res NodeTotals
	err := c.getJSON(ctx, &res, "nodes", string(hash), "totals")
	return res, err
}

// TreasuryClient reads the treasury balance totals.
type TreasuryClient struct {
	*httpClient
}

func NewTreasuryClient(base string, client *fasthttp.Client) *TreasuryClient {
	return &TreasuryClient{newHTTPClient(base, client)}
}

func (c *TreasuryClient) Totals(ctx context.Context) (index.TreasuryTotals, error) {
	var res index.TreasuryTotals
	if err := c.getJSON(ctx, &res, "get-total-balance"); err != nil {
		return res, err
	}
	res.CreateTime = time.Now().UTC()
	return res, nil
}
