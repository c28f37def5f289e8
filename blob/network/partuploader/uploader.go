// Package partuploader drives the part-upload phase of a multipart upload:
// it slices a body into ordered parts, uploads them with bounded
// concurrency and aggregates progress across the in-flight parts.
package partuploader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// DefaultConcurrency is the maximum number of concurrently in-flight part
// uploads unless configured otherwise.
const DefaultConcurrency = 6

// PartResult identifies one successfully uploaded part. The service
// requires the entity tag to reference the part at completion time.
type PartResult struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// UploadPartFunc uploads a single part and returns its result. It is
// called concurrently for different parts and must be safe for that.
// Retries of a single part happen inside this function; when it returns an
// error the part is considered permanently failed.
type UploadPartFunc func(ctx context.Context, partNumber int, body []byte, onProgress ProgressFunc) (PartResult, error)

// Config holds configuration for the part uploader.
type Config struct {
	// Concurrency bounds the number of in-flight part uploads.
	// Default: DefaultConcurrency.
	Concurrency int

	// Execution selects the execution model driving part uploads.
	Execution ExecutionModel

	// Timeout is an optional deadline for the whole part-upload phase.
	// Individual part uploads carry their own per-request timeouts; this
	// bounds the operation end to end. Zero means no overall deadline.
	Timeout time.Duration
}

// Uploader uploads all chunks of a ChunkSource via an UploadPartFunc.
type Uploader struct {
	config Config
	logger log.Logger
}

// New creates an Uploader with the given configuration.
func New(config Config, logger log.Logger) *Uploader {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	return &Uploader{config: config, logger: logger}
}

// Upload pulls chunks from source in order, assigns 1-based part numbers in
// that order and uploads them with bounded concurrency. total is the
// expected body size in bytes, or 0 when unknown. The returned results are
// in arrival order, which is unspecified; callers must rely on the
// PartNumber labels only.
//
// If any part fails, the shared context is cancelled so sibling uploads
// abort, and the first failure is returned. Partial success is never
// reported as success.
func (u *Uploader) Upload(
	ctx context.Context,
	source *ChunkSource,
	total int64,
	onProgress ProgressFunc,
	uploadPart UploadPartFunc,
) ([]PartResult, error) {
	if u.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.config.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := newProgressTable(total, onProgress)
	exec := newExecutor(u.config.Execution, u.config.Concurrency)

	var mu sync.Mutex
	var results []PartResult
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	partNumber := 0
	for {
		chunk, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fail(err)
			break
		}
		if failed() {
			break
		}

		partNumber++
		number := partNumber
		u.logger.Debugf("Uploading part %d (%d bytes)", number, len(chunk))

		exec.submit(func() {
			if ctx.Err() != nil {
				return
			}
			result, err := uploadPart(ctx, number, chunk, func(event ProgressEvent) {
				progress.update(number, event.Loaded)
			})
			if err != nil {
				fail(fmt.Errorf("upload part %d: %w", number, err))
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		})
	}

	exec.wait()

	if firstErr != nil {
		return nil, firstErr
	}
	progress.finish()
	return results, nil
}
