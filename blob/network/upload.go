package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/docker/go-units"

	"github.com/blobvault/blobvault-go/blob/network/partuploader"
)

// MultipartThreshold is the body size above which uploads switch from a
// single PUT to a multipart upload.
const MultipartThreshold = 5 * 1024 * 1024

// PutResult describes the stored object. Raw holds the unmodified response
// payload, so fields the service returns beyond the modeled set are
// preserved.
type PutResult struct {
	URL                string          `json:"url"`
	DownloadURL        string          `json:"downloadUrl"`
	Pathname           string          `json:"pathname"`
	ContentType        string          `json:"contentType"`
	ContentDisposition string          `json:"contentDisposition"`
	Raw                json.RawMessage `json:"-"`
}

func decodePutResult(body []byte) (*PutResult, error) {
	var result PutResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode put response: %w", err)
	}
	result.Raw = json.RawMessage(append([]byte(nil), body...))
	return &result, nil
}

// Put uploads body in a single request.
func (c *Client) Put(ctx context.Context, path string, headers map[string]string, body []byte, onProgress partuploader.ProgressFunc) (*PutResult, error) {
	total := int64(len(body))
	var progress func(loaded int64)
	if onProgress != nil {
		progress = func(loaded int64) {
			onProgress(partuploader.NewProgressEvent(loaded, total))
		}
	}

	responseBody, err := c.do(ctx, apiRequest{
		method:     "PUT",
		path:       "",
		headers:    headers,
		query:      url.Values{"pathname": {path}},
		body:       body,
		onProgress: progress,
	})
	if err != nil {
		return nil, err
	}
	return decodePutResult(responseBody)
}

// UploadParams ...
type UploadParams struct {
	Path    string
	Headers map[string]string
	Body    io.Reader
	// Size is the body length in bytes, or -1 when unknown. Bodies of
	// unknown size are always uploaded as multipart.
	Size int64
	// Multipart forces a multipart upload regardless of Size.
	Multipart bool
	// PartSize overrides the part size. Default: partuploader.DefaultPartSize.
	PartSize    int64
	Concurrency int
	Execution   partuploader.ExecutionModel
	// Timeout bounds the part-upload phase end to end. Zero means no
	// overall deadline.
	Timeout    time.Duration
	OnProgress partuploader.ProgressFunc
}

// Upload stores a body under a pathname, choosing between a single-shot
// PUT and a multipart upload. The multipart path walks the
// create → upload parts → complete sequence; any unrecovered error along
// the way fails the upload as-is, without a remote abort call.
func (c *Client) Upload(ctx context.Context, params UploadParams) (*PutResult, error) {
	if !params.Multipart && params.Size >= 0 && params.Size <= MultipartThreshold {
		body, err := io.ReadAll(params.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		c.logger.Debugf("Uploading %s in a single request", units.HumanSize(float64(len(body))))
		return c.Put(ctx, params.Path, params.Headers, body, params.OnProgress)
	}

	partSize := params.PartSize
	if partSize == 0 {
		partSize = partuploader.DefaultPartSize
	}
	source, err := partuploader.NewChunkSource(params.Body, partSize)
	if err != nil {
		return nil, err
	}

	c.logger.Debugf("Creating multipart upload for %s", params.Path)
	session, err := c.createMultipartUpload(ctx, params.Path, params.Headers)
	if err != nil {
		return nil, fmt.Errorf("create multipart upload: %w", err)
	}
	c.logger.Debugf("Multipart upload created (upload id: %s)", session.uploadID)

	total := params.Size
	if total < 0 {
		total = 0
	}
	uploader := partuploader.New(partuploader.Config{
		Concurrency: params.Concurrency,
		Execution:   params.Execution,
		Timeout:     params.Timeout,
	}, c.logger)

	parts, err := uploader.Upload(ctx, source, total, params.OnProgress, func(ctx context.Context, partNumber int, body []byte, onProgress partuploader.ProgressFunc) (partuploader.PartResult, error) {
		return c.uploadPart(ctx, session, partNumber, body, onProgress)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debugf("Uploaded %d parts, completing upload", len(parts))
	result, err := c.completeMultipartUpload(ctx, session, parts)
	if err != nil {
		return nil, fmt.Errorf("complete multipart upload: %w", err)
	}
	return result, nil
}
