package cloudreve

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/handiism/cloudreve-downloader/internal/cloudreve/dto"
	xhttp "github.com/handiism/cloudreve-downloader/internal/http"
	"github.com/handiism/cloudreve-downloader/internal/model"
)

// APIError is returned when the server answers 200 but with a non-zero
// status code in the response envelope.
type APIError struct {
	URL  string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s (%s)", e.Code, e.Msg, e.URL)
}

// Client talks to the share endpoints of a Cloudreve v3 server.
//
// Client provides:
//   - Directory listing (ListDirectory) and a full tree walk (Walk)
//   - Signed link resolution for one file (ResolveLink) or many (Resolve)
//
// Walk and Resolve never fail as a whole. A directory or file that cannot be
// fetched is passed to OnError and left out of the result.
//
// Example usage:
//
//	client := cloudreve.NewClient(httpClient, share)
//	client.OnError = func(err error) { log.Error(err) }
//
//	files := client.Walk(ctx)
//	links := client.Resolve(ctx, model.Paths(files))
type Client struct {
	http  *xhttp.Client
	share model.ShareReference

	// OnError receives per-directory and per-file failures. May be nil.
	OnError func(error)
}

// NewClient creates a Client for one share.
func NewClient(httpClient *xhttp.Client, share model.ShareReference) *Client {
	return &Client{
		http:  httpClient,
		share: share,
	}
}

// ListDirectory returns the objects of one directory of the share.
//
// dir is relative to the share root; leading and trailing slashes are ignored
// and "" lists the root.
func (c *Client) ListDirectory(ctx context.Context, dir string) ([]dto.Object, error) {
	u := c.listURL(dir)

	var resp dto.ListResponse
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("list %q: %w", "/"+strings.Trim(dir, "/"), err)
	}
	if resp.Code != 0 {
		return nil, &APIError{URL: u, Code: resp.Code, Msg: resp.Msg}
	}

	return resp.Data.Objects, nil
}

// Walk enumerates every file of the share, depth-first.
//
// A directory is fully listed before any of its subdirectories is visited.
// Directories are kept on an explicit stack, so arbitrarily deep trees do not
// grow the call stack. If ctx is cancelled the files collected so far are
// returned.
func (c *Client) Walk(ctx context.Context) []model.FileEntry {
	var files []model.FileEntry
	pending := []string{""}

	for len(pending) > 0 {
		if ctx.Err() != nil {
			break
		}

		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		objects, err := c.ListDirectory(ctx, dir)
		if err != nil {
			c.reportError(err)
			continue
		}

		var subdirs []string
		for i := range objects {
			obj := &objects[i]
			if obj.IsDir() {
				subdirs = append(subdirs, joinPath(dir, obj.Name))
				continue
			}
			files = append(files, obj.ToFileEntry(dir))
		}

		// Push in reverse so the first subdirectory is visited next.
		for i := len(subdirs) - 1; i >= 0; i-- {
			pending = append(pending, subdirs[i])
		}
	}

	return files
}

// ResolveLink requests a signed download URL for one file.
// path is the absolute path of the file inside the share.
func (c *Client) ResolveLink(ctx context.Context, path string) (string, error) {
	u := c.downloadURL(path)

	var resp dto.DownloadResponse
	if err := c.http.PutJSON(ctx, u, &resp); err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	if resp.Code != 0 {
		return "", &APIError{URL: u, Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == "" {
		return "", &APIError{URL: u, Code: resp.Code, Msg: "empty download URL"}
	}

	return resp.Data, nil
}

// Resolve requests a download URL for each path, one at a time and in order.
//
// Paths that fail are reported to OnError and have no entry in the result.
// There are no retries.
func (c *Client) Resolve(ctx context.Context, paths []string) model.LinkTable {
	links := make(model.LinkTable, len(paths))

	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}

		link, err := c.ResolveLink(ctx, p)
		if err != nil {
			c.reportError(err)
			continue
		}
		links[p] = link
	}

	return links
}

func (c *Client) listURL(dir string) string {
	dir = strings.Trim(dir, "/")
	return fmt.Sprintf("%s/api/v3/share/list/%s%%2F%s",
		c.share.BaseURL, url.PathEscape(c.share.Code), url.PathEscape(dir))
}

func (c *Client) downloadURL(path string) string {
	q := url.Values{"path": {path}}
	return fmt.Sprintf("%s/api/v3/share/download/%s?%s",
		c.share.BaseURL, url.PathEscape(c.share.Code), q.Encode())
}

func (c *Client) reportError(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
