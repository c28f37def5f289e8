package blob

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"

	"github.com/blobvault/blobvault-go/blob/network"
)

// PutOptions ...
type PutOptions struct {
	// Access must be "public"; it defaults to "public" when empty.
	Access string
	// ContentType overrides the content type the service infers from the
	// pathname.
	ContentType string
	// AddRandomSuffix appends a random suffix to the pathname, so repeated
	// uploads never collide.
	AddRandomSuffix bool
	// AllowOverwrite permits replacing an existing object.
	AllowOverwrite bool
	// CacheControlMaxAge is the edge cache lifetime in seconds. Zero keeps
	// the service default.
	CacheControlMaxAge int
	// Multipart forces a multipart upload even below the size threshold.
	Multipart bool
	// PartSize overrides the multipart part size.
	PartSize int64
	// Concurrency bounds the number of in-flight part uploads.
	Concurrency int
	// Execution selects the part uploader's execution model.
	Execution ExecutionModel
	// Timeout bounds the part-upload phase end to end.
	Timeout time.Duration
	// OnProgress receives aggregated progress across all in-flight parts.
	OnProgress func(UploadProgressEvent)
}

func (o PutOptions) validate() error {
	if o.Access != "" && o.Access != "public" {
		return fmt.Errorf(`access must be "public"`)
	}
	return nil
}

func (o PutOptions) headers() map[string]string {
	headers := map[string]string{}
	if o.ContentType != "" {
		headers["x-content-type"] = o.ContentType
	}
	if o.AddRandomSuffix {
		headers["x-add-random-suffix"] = "1"
	}
	if o.AllowOverwrite {
		headers["x-allow-overwrite"] = "1"
	}
	if o.CacheControlMaxAge > 0 {
		headers["x-cache-control-max-age"] = strconv.Itoa(o.CacheControlMaxAge)
	}
	return headers
}

// Put stores body under path and returns the descriptor of the stored
// object. Bodies above the multipart threshold, of unknown size, or with
// Multipart set are uploaded as concurrent multipart uploads.
func (c *Client) Put(ctx context.Context, pathname string, body Body, opts PutOptions) (*PutResult, error) {
	if err := validatePath(pathname); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if body.reader == nil {
		return nil, fmt.Errorf("body is required")
	}

	multipart := opts.Multipart || body.size < 0 || body.size > network.MultipartThreshold

	result, err := c.api.Upload(ctx, network.UploadParams{
		Path:        pathname,
		Headers:     opts.headers(),
		Body:        body.reader,
		Size:        body.size,
		Multipart:   opts.Multipart,
		PartSize:    opts.PartSize,
		Concurrency: opts.Concurrency,
		Execution:   opts.Execution,
		Timeout:     opts.Timeout,
		OnProgress:  opts.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	c.tracker.logPut(multipart, body.size, opts.ContentType)
	return result, nil
}

// UploadFile stores a local file under path. Files above the multipart
// threshold are uploaded as multipart uploads.
func (c *Client) UploadFile(ctx context.Context, localPath, pathname string, opts PutOptions) (*PutResult, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			c.logger.Errorf("failed to close file: %s", err)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", localPath)
	}

	c.logger.Debugf("Uploading %s (%s) to %s", localPath, units.HumanSize(float64(info.Size())), pathname)
	return c.Put(ctx, pathname, Body{reader: file, size: info.Size()}, opts)
}

// UploadDirectory uploads every file under dir matching any of the glob
// patterns, storing each under prefix joined with its path relative to
// dir. Patterns follow doublestar syntax; no patterns means everything.
// Files are uploaded one by one, in deterministic path order.
func (c *Client) UploadDirectory(ctx context.Context, dir, prefix string, patterns []string, opts PutOptions) ([]*PutResult, error) {
	if len(patterns) == 0 {
		patterns = []string{"**/*"}
	}

	fsys := os.DirFS(dir)
	matched := map[string]bool{}
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := fs.Stat(fsys, match)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", match, err)
			}
			if !info.IsDir() {
				matched[match] = true
			}
		}
	}

	files := make([]string, 0, len(matched))
	for file := range matched {
		files = append(files, file)
	}
	sort.Strings(files)

	results := make([]*PutResult, 0, len(files))
	for _, file := range files {
		result, err := c.UploadFile(ctx, filepath.Join(dir, file), path.Join(prefix, file), opts)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", file, err)
		}
		results = append(results, result)
	}
	return results, nil
}
