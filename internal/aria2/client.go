package aria2

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	xhttp "github.com/handiism/cloudreve-downloader/internal/http"
)

// listLimit bounds tellWaiting and tellStopped queries.
const listLimit = 1000

// statusKeys are the fields requested from tell* methods.
var statusKeys = []string{"gid", "status", "totalLength", "completedLength", "dir", "errorMessage"}

// Download is the status of one aria2 download.
//
// aria2 reports byte counts as decimal strings; use the accessor methods to
// read them as integers.
type Download struct {
	GID             string `json:"gid"`
	Status          string `json:"status"`
	TotalLength     string `json:"totalLength"`
	CompletedLength string `json:"completedLength"`
	Dir             string `json:"dir"`
	ErrorMessage    string `json:"errorMessage"`
}

// IsComplete reports whether aria2 finished the download.
func (d Download) IsComplete() bool {
	return d.Status == "complete"
}

// Completed returns the number of bytes downloaded so far.
func (d Download) Completed() int64 {
	n, _ := strconv.ParseInt(d.CompletedLength, 10, 64)
	return n
}

// Total returns the size of the download, or 0 when aria2 does not know it yet.
func (d Download) Total() int64 {
	n, _ := strconv.ParseInt(d.TotalLength, 10, 64)
	return n
}

// RPCError is an error object returned by aria2.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("aria2 error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     string                 `json:"id"`
	Result sonic.NoCopyRawMessage `json:"result"`
	Error  *RPCError              `json:"error"`
}

// Client is a JSON-RPC client for a running aria2 daemon.
//
// Example usage:
//
//	client := aria2.NewClient(httpClient, "http://localhost:6800/jsonrpc", "")
//	gid, err := client.AddURI(ctx, []string{url}, map[string]string{"dir": "/data"})
//
//	downloads, err := client.Downloads(ctx)
//	for _, d := range downloads {
//	    fmt.Println(d.GID, d.Status, d.Completed())
//	}
type Client struct {
	http     *xhttp.Client
	endpoint string
	secret   string
}

// NewClient creates a Client for the JSON-RPC endpoint.
// An empty secret sends no token.
func NewClient(httpClient *xhttp.Client, endpoint, secret string) *Client {
	return &Client{
		http:     httpClient,
		endpoint: endpoint,
		secret:   secret,
	}
}

// AddURI queues a new download and returns its GID.
func (c *Client) AddURI(ctx context.Context, uris []string, options map[string]string) (string, error) {
	params := []any{uris}
	if len(options) > 0 {
		params = append(params, options)
	}

	var gid string
	if err := c.call(ctx, "aria2.addUri", params, &gid); err != nil {
		return "", err
	}
	return gid, nil
}

// TellActive returns the downloads aria2 is currently transferring.
func (c *Client) TellActive(ctx context.Context) ([]Download, error) {
	var downloads []Download
	err := c.call(ctx, "aria2.tellActive", []any{statusKeys}, &downloads)
	return downloads, err
}

// TellWaiting returns queued and paused downloads.
func (c *Client) TellWaiting(ctx context.Context, offset, num int) ([]Download, error) {
	var downloads []Download
	err := c.call(ctx, "aria2.tellWaiting", []any{offset, num, statusKeys}, &downloads)
	return downloads, err
}

// TellStopped returns completed, failed and removed downloads.
func (c *Client) TellStopped(ctx context.Context, offset, num int) ([]Download, error) {
	var downloads []Download
	err := c.call(ctx, "aria2.tellStopped", []any{offset, num, statusKeys}, &downloads)
	return downloads, err
}

// Downloads returns every download aria2 knows about: active, waiting and stopped.
func (c *Client) Downloads(ctx context.Context) ([]Download, error) {
	active, err := c.TellActive(ctx)
	if err != nil {
		return nil, err
	}
	waiting, err := c.TellWaiting(ctx, 0, listLimit)
	if err != nil {
		return nil, err
	}
	stopped, err := c.TellStopped(ctx, 0, listLimit)
	if err != nil {
		return nil, err
	}

	all := make([]Download, 0, len(active)+len(waiting)+len(stopped))
	all = append(all, active...)
	all = append(all, waiting...)
	return append(all, stopped...), nil
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	if c.secret != "" {
		params = append([]any{"token:" + c.secret}, params...)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}

	var resp rpcResponse
	if err := c.http.PostJSON(ctx, c.endpoint, req, &resp); err != nil {
		// aria2 answers RPC errors with a 4xx status and the error in the body.
		var statusErr *xhttp.StatusError
		if errors.As(err, &statusErr) && len(statusErr.Body) > 0 {
			if sonic.Unmarshal(statusErr.Body, &resp) == nil && resp.Error != nil {
				return fmt.Errorf("%s: %w", method, resp.Error)
			}
		}
		return fmt.Errorf("%s: %w", method, err)
	}

	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", method, err)
	}
	return nil
}
