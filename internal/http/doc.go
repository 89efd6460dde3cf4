// Package http provides the HTTP client used for the Cloudreve share API
// and the aria2 JSON-RPC endpoint.
//
// The Client in this package handles:
//   - User-Agent headers
//   - Timeout handling
//   - Request rate limiting (golang.org/x/time/rate)
//   - JSON encoding and decoding (bytedance/sonic)
//
// # Basic Usage
//
//	client := http.NewClient(60*time.Second, "CloudreveDownloader", 0)
//
//	var out struct{ Code int `json:"code"` }
//	err := client.GetJSON(ctx, "https://cloud.example.com/api/v3/site/ping", &out)
//
// # Errors
//
// Non-2xx responses are returned as *StatusError, which keeps the response
// body for callers that need to inspect it:
//
//	var statusErr *http.StatusError
//	if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
//	    // ...
//	}
package http
