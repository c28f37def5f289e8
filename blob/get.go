package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blobvault/blobvault-go/blob/network"
)

// GetOptions ...
type GetOptions struct {
	// BypassCache fetches past the edge cache instead of a possibly stale
	// cached copy.
	BypassCache bool
	// IfNoneMatch sends the entity tag of a previously fetched copy. When
	// the stored content still matches, the result has NotModified set and
	// carries no body.
	IfNoneMatch string
}

// GetResult is the content of a stored object together with the metadata
// the store serves it with.
type GetResult struct {
	Content            []byte
	URL                string
	DownloadURL        string
	Pathname           string
	ContentType        string
	ContentDisposition string
	CacheControl       string
	ETag               string
	Size               int64
	UploadedAt         time.Time
	// NotModified is set when IfNoneMatch matched; Content is empty then.
	NotModified bool
}

// Get fetches the content of the object at urlOrPath into memory. Use
// DownloadFile for large objects that should go straight to disk.
func (c *Client) Get(ctx context.Context, urlOrPath string, opts GetOptions) (*GetResult, error) {
	blobURL, err := c.resolveURL(ctx, urlOrPath)
	if err != nil {
		return nil, err
	}
	downloadURL, err := asDownloadURL(blobURL)
	if err != nil {
		return nil, err
	}

	targetURL := blobURL
	if opts.BypassCache {
		targetURL, err = withQueryParam(blobURL, "cache", "0")
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if opts.IfNoneMatch != "" {
		req.Header.Set("if-none-match", opts.IfNoneMatch)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", targetURL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Errorf("failed to close response body: %s", err)
		}
	}()

	result := &GetResult{
		URL:                blobURL,
		DownloadURL:        downloadURL,
		Pathname:           pathnameFromURL(blobURL),
		ContentType:        resp.Header.Get("content-type"),
		ContentDisposition: resp.Header.Get("content-disposition"),
		CacheControl:       resp.Header.Get("cache-control"),
		ETag:               resp.Header.Get("etag"),
	}
	if lastModified := resp.Header.Get("last-modified"); lastModified != "" {
		if uploadedAt, err := http.ParseTime(lastModified); err == nil {
			result.UploadedAt = uploadedAt
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		result.NotModified = true
		return result, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &network.APIError{
			Kind:    network.KindNotFound,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("no blob found at %s", blobURL),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("fetch %s: HTTP %d", targetURL, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	result.Content = content
	result.Size = int64(len(content))

	c.tracker.logGet(result.Size)
	return result, nil
}

func pathnameFromURL(blobURL string) string {
	parsed, err := url.Parse(blobURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Path, "/")
}
