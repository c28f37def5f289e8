package blob

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/melbahja/got"
)

// DownloadOptions ...
type DownloadOptions struct {
	// Overwrite permits replacing an existing destination file.
	Overwrite bool
}

// DownloadFile downloads the object at urlOrPath to destPath, creating
// parent directories as needed. The object is written to a temporary
// sibling first and moved into place once complete, so a failed download
// never leaves a truncated destination behind.
func (c *Client) DownloadFile(ctx context.Context, urlOrPath, destPath string, opts DownloadOptions) error {
	blobURL, err := c.resolveURL(ctx, urlOrPath)
	if err != nil {
		return err
	}
	downloadURL, err := asDownloadURL(blobURL)
	if err != nil {
		return err
	}

	if !opts.Overwrite {
		if _, err := os.Stat(destPath); err == nil {
			return fmt.Errorf("%s already exists, pass Overwrite to replace it", destPath)
		}
	}
	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create destination directory: %w", err)
		}
	}

	tempPath := destPath + ".part"
	startTime := time.Now()

	g := got.New()
	if err := g.Do(got.NewDownload(ctx, downloadURL, tempPath)); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("download %s: %w", downloadURL, err)
	}

	info, err := os.Stat(tempPath)
	if err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("stat downloaded file: %w", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}

	downloadTime := time.Since(startTime).Round(time.Millisecond)
	c.logger.Debugf("Downloaded %s (%s) in %s", destPath, units.HumanSize(float64(info.Size())), downloadTime)
	c.tracker.logDownload(info.Size(), downloadTime)
	return nil
}

// asDownloadURL adds the query flag that makes the CDN serve the object
// as an attachment instead of rendering it inline.
func asDownloadURL(blobURL string) (string, error) {
	return withQueryParam(blobURL, "download", "1")
}

func withQueryParam(rawURL, key, value string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid blob URL %s: %w", rawURL, err)
	}
	query := parsed.Query()
	query.Set(key, value)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
