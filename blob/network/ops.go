package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// HeadResult holds the metadata of a stored object.
type HeadResult struct {
	Size               int64     `json:"size"`
	UploadedAt         time.Time `json:"uploadedAt"`
	Pathname           string    `json:"pathname"`
	ContentType        string    `json:"contentType"`
	ContentDisposition string    `json:"contentDisposition"`
	URL                string    `json:"url"`
	DownloadURL        string    `json:"downloadUrl"`
	CacheControl       string    `json:"cacheControl"`
}

// ListItem ...
type ListItem struct {
	URL         string    `json:"url"`
	DownloadURL string    `json:"downloadUrl"`
	Pathname    string    `json:"pathname"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// ListOptions ...
type ListOptions struct {
	Limit  int
	Prefix string
	Cursor string
	// Mode is "expanded" or "folded"; folded mode groups results under
	// Folders.
	Mode string
}

// ListResult is one page of a listing.
type ListResult struct {
	Blobs   []ListItem `json:"blobs"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"hasMore"`
	Folders []string   `json:"folders"`
}

// Head fetches the metadata of an object by URL or pathname.
func (c *Client) Head(ctx context.Context, urlOrPath string) (*HeadResult, error) {
	body, err := c.do(ctx, apiRequest{
		method: "GET",
		query:  url.Values{"url": {urlOrPath}},
	})
	if err != nil {
		return nil, err
	}

	var result HeadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode head response: %w", err)
	}
	return &result, nil
}

// List returns one page of objects.
func (c *Client) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Prefix != "" {
		query.Set("prefix", opts.Prefix)
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Mode != "" {
		query.Set("mode", opts.Mode)
	}

	body, err := c.do(ctx, apiRequest{method: "GET", query: query})
	if err != nil {
		return nil, err
	}

	var result ListResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return &result, nil
}

// Delete removes objects by URL. Deleting an already deleted object is not
// an error.
func (c *Client) Delete(ctx context.Context, urls []string) error {
	body, err := json.Marshal(map[string][]string{"urls": urls})
	if err != nil {
		return fmt.Errorf("marshal delete request: %w", err)
	}

	_, err = c.do(ctx, apiRequest{
		method:  "POST",
		path:    "/delete",
		headers: map[string]string{"Content-Type": "application/json"},
		body:    body,
	})
	return err
}

// Copy stores an existing object under a new pathname without re-uploading
// its bytes.
func (c *Client) Copy(ctx context.Context, fromURL, toPath string, headers map[string]string) (*PutResult, error) {
	body, err := c.do(ctx, apiRequest{
		method:  "PUT",
		headers: headers,
		query:   url.Values{"pathname": {toPath}, "fromUrl": {fromURL}},
	})
	if err != nil {
		return nil, err
	}
	return decodePutResult(body)
}
