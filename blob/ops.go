package blob

import (
	"context"
	"fmt"
	"strings"
)

// CreateFolderResult ...
type CreateFolderResult struct {
	Pathname string `json:"pathname"`
	URL      string `json:"url"`
}

// Head returns the metadata of the object at urlOrPath.
func (c *Client) Head(ctx context.Context, urlOrPath string) (*HeadResult, error) {
	url, err := c.resolveURL(ctx, urlOrPath)
	if err != nil {
		return nil, err
	}
	return c.api.Head(ctx, url)
}

// List returns a page of stored objects. Pass the returned cursor back in
// options to fetch the next page while HasMore is true.
func (c *Client) List(ctx context.Context, options ListOptions) (*ListResult, error) {
	return c.api.List(ctx, options)
}

// ListAll walks the cursor chain and returns every object matching
// options. Options.Limit bounds the page size, not the overall result;
// expect one request per page of stored objects.
func (c *Client) ListAll(ctx context.Context, options ListOptions) ([]ListItem, error) {
	var items []ListItem
	for {
		page, err := c.List(ctx, options)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Blobs...)
		if !page.HasMore || page.Cursor == "" {
			return items, nil
		}
		options.Cursor = page.Cursor
	}
}

// Delete removes the objects at the given URLs or pathnames. Deleting a
// blob that does not exist is not an error.
func (c *Client) Delete(ctx context.Context, urlsOrPaths ...string) error {
	if len(urlsOrPaths) == 0 {
		return nil
	}
	if err := c.api.Delete(ctx, urlsOrPaths); err != nil {
		return err
	}
	c.tracker.logDelete(len(urlsOrPaths))
	return nil
}

// Copy duplicates the object at fromURLOrPath under toPathname. The copy
// does not inherit the source's cache settings unless re-specified.
func (c *Client) Copy(ctx context.Context, fromURLOrPath, toPathname string, opts PutOptions) (*PutResult, error) {
	if err := validatePath(toPathname); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	fromURL, err := c.resolveURL(ctx, fromURLOrPath)
	if err != nil {
		return nil, err
	}

	result, err := c.api.Copy(ctx, fromURL, toPathname, opts.headers())
	if err != nil {
		return nil, err
	}

	c.tracker.logCopy()
	return result, nil
}

// CreateFolder creates a virtual folder at pathname. Folders carry no
// content; they only shape listings in folded mode.
func (c *Client) CreateFolder(ctx context.Context, pathname string) (*CreateFolderResult, error) {
	if err := validatePath(pathname); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(pathname, "/") {
		pathname += "/"
	}

	result, err := c.api.Put(ctx, pathname, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return &CreateFolderResult{Pathname: result.Pathname, URL: result.URL}, nil
}

// resolveURL maps a pathname to its blob URL via a metadata lookup.
// Full URLs pass through untouched.
func (c *Client) resolveURL(ctx context.Context, urlOrPath string) (string, error) {
	if isURL(urlOrPath) {
		return urlOrPath, nil
	}
	head, err := c.api.Head(ctx, urlOrPath)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", urlOrPath, err)
	}
	return head.URL, nil
}
