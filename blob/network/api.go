// Package network implements the HTTP engine of the blob client: a
// resilient request client with retry and backoff, the multipart upload
// state machine, and the typed error contract of the service.
package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	headerRequestID      = "x-api-blob-request-id"
	headerRequestAttempt = "x-api-blob-request-attempt"
	headerAPIVersion     = "x-api-version"

	// apiVersion is the wire protocol version this client speaks.
	apiVersion = "11"

	defaultTimeout = 30 * time.Second
	defaultRetries = 10

	maxBackoff = 2 * time.Second
)

// Client issues requests against the blob API with retry, backoff and
// error classification. All exported methods return *APIError for service
// failures.
type Client struct {
	httpClient *retryablehttp.Client
	baseURL    string
	token      string
	logger     log.Logger
}

// NewClientParams ...
type NewClientParams struct {
	BaseURL string
	Token   string
	// Retries is the retry budget for retryable failures. Default: 10.
	Retries int
	// Timeout applies to each individual HTTP attempt. Default: 30s.
	Timeout time.Duration
	// HTTPClient overrides the transport. Retry behavior stays with the Client.
	HTTPClient *http.Client
	Logger     log.Logger
}

// NewClient ...
func NewClient(params NewClientParams) *Client {
	retries := params.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	httpClient.Timeout = timeout

	retryClient := &retryablehttp.Client{
		HTTPClient: httpClient,
		RetryMax:   retries,
		CheckRetry: newCheckRetry(params.Logger),
		Backoff:    backoff,
		// Keep the last response on exhausted retries so it can be classified.
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			req.Header.Set(headerRequestAttempt, strconv.Itoa(attempt))
		},
	}

	return &Client{
		httpClient: retryClient,
		baseURL:    strings.TrimSuffix(params.BaseURL, "/"),
		token:      params.Token,
		logger:     params.Logger,
	}
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

// newCheckRetry classifies each response and retries only transport
// failures and the retryable error codes. Everything else fails the
// request immediately and is surfaced as a typed error by do.
func newCheckRetry(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			logger.Debugf("Retrying request after transport failure: %v", err)
			return true, nil
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return false, nil
		}

		code, _ := decodeErrorCode(resp)
		if retryableCode(code) {
			logger.Debugf("Retrying request after error code %q (HTTP %d)", code, resp.StatusCode)
			return true, nil
		}
		return false, nil
	}
}

// backoff grows exponentially from 100ms and is capped at 2 seconds:
// min(2^attempt * 100ms, 2s), attempt starting at 0.
func backoff(_, _ time.Duration, attempt int, _ *http.Response) time.Duration {
	delay := (100 * time.Millisecond) << uint(attempt)
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// apiRequest describes one logical API call. The request id is generated
// once per call and reused across its retries; only the attempt counter
// header changes between attempts.
type apiRequest struct {
	method     string
	path       string
	headers    map[string]string
	query      url.Values
	body       []byte
	onProgress func(loaded int64)
	timeout    time.Duration
}

func (c *Client) do(ctx context.Context, r apiRequest) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	total := int64(len(r.body))
	if r.onProgress != nil && total > 0 {
		r.onProgress(0)
	}

	requestURL := c.baseURL + r.path
	if len(r.query) > 0 {
		requestURL += "?" + r.query.Encode()
	}

	var body interface{}
	if r.body != nil {
		raw := r.body
		onProgress := r.onProgress
		// A fresh reader per attempt so retries re-stream from the start.
		body = retryablehttp.ReaderFunc(func() (io.Reader, error) {
			return &progressReader{reader: bytes.NewReader(raw), onProgress: onProgress}, nil
		})
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, r.method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = total

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set(headerRequestID, makeRequestID(c.token))
	req.Header.Set(headerAPIVersion, apiVersion)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			defer closeBody(resp, c.logger)
			return nil, classifyResponse(resp)
		}
		return nil, &APIError{Kind: KindUnknown, cause: err}
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyResponse(resp)
	}

	if r.onProgress != nil {
		r.onProgress(total)
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return responseBody, nil
}

func closeBody(resp *http.Response, logger log.Logger) {
	if err := resp.Body.Close(); err != nil {
		logger.Printf(err.Error())
	}
}

// progressReader reports the number of bytes the transport has consumed
// from the request body.
type progressReader struct {
	reader     io.Reader
	loaded     int64
	onProgress func(loaded int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.loaded)
		}
	}
	return n, err
}

// makeRequestID builds the request id sent with a logical call: the store
// id from the token, a millisecond timestamp and a short random suffix.
func makeRequestID(token string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s:%d:%s", extractStoreID(token), time.Now().UnixMilli(), suffix)
}

// extractStoreID pulls the store id out of a client token. Tokens have the
// shape prefix_rw_<region>_<storeID>_<secret>; an unexpected shape yields
// an empty store id.
func extractStoreID(token string) string {
	parts := strings.Split(token, "_")
	if len(parts) > 3 {
		return parts[3]
	}
	return ""
}
