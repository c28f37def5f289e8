// Package blob is a client for the BlobVault object-storage API. It
// uploads bodies of any size (switching to concurrent multipart uploads
// above a threshold), downloads them back, and exposes the usual
// head/list/copy/delete operations.
package blob

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/blobvault/blobvault-go/blob/network"
	"github.com/blobvault/blobvault-go/blob/network/partuploader"
)

// DefaultAPIURL is used when no base URL is configured.
const DefaultAPIURL = "https://blobvault.com/api/blob"

const (
	// TokenEnvKey is the environment variable holding the read-write token.
	TokenEnvKey = "BLOB_READ_WRITE_TOKEN"
	// APIURLEnvKey overrides the API base URL.
	APIURLEnvKey = "BLOB_API_URL"
	// RetriesEnvKey overrides the retry budget.
	RetriesEnvKey = "BLOB_RETRIES"
)

const maximumPathnameLength = 950

// ErrNoToken is returned when no access token is configured. It surfaces
// before any network call is attempted.
var ErrNoToken = errors.New("no token found: set " + TokenEnvKey + " or pass Token in ClientParams")

// Type aliases so callers only need this package for everyday use.
type (
	// PutResult ...
	PutResult = network.PutResult
	// HeadResult ...
	HeadResult = network.HeadResult
	// ListResult ...
	ListResult = network.ListResult
	// ListItem ...
	ListItem = network.ListItem
	// ListOptions ...
	ListOptions = network.ListOptions
	// UploadProgressEvent ...
	UploadProgressEvent = partuploader.ProgressEvent
	// ExecutionModel ...
	ExecutionModel = partuploader.ExecutionModel
)

// Execution models for the multipart part uploader.
const (
	AdmissionGate = partuploader.AdmissionGate
	WorkerPool    = partuploader.WorkerPool
)

// ClientParams ...
type ClientParams struct {
	// Token is the read-write token. Falls back to TokenEnvKey.
	Token string
	// BaseURL is the API base URL. Falls back to APIURLEnvKey, then
	// DefaultAPIURL.
	BaseURL string
	// Retries is the retry budget for retryable failures. Falls back to
	// RetriesEnvKey, then the engine default.
	Retries int
	// Timeout applies to each individual HTTP attempt.
	Timeout time.Duration
	// HTTPClient overrides the transport used for API calls.
	HTTPClient *http.Client
	// Tracker receives usage events. Telemetry is fire-and-forget and
	// never blocks or fails an operation. Nil disables it.
	Tracker analytics.Tracker
}

// Client talks to a single blob store.
type Client struct {
	api *network.Client
	// httpClient serves direct store fetches (Get); API calls go through
	// api with its own retry stack.
	httpClient *http.Client
	envRepo    env.Repository
	logger     log.Logger
	tracker    usageTracker
}

// NewClient resolves the token and base URL from params and the
// environment and returns a ready-to-use client. A missing token is
// reported here, before any network call.
func NewClient(params ClientParams, envRepo env.Repository, logger log.Logger) (*Client, error) {
	token := params.Token
	if token == "" {
		token = envRepo.Get(TokenEnvKey)
	}
	if token == "" {
		return nil, ErrNoToken
	}

	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = envRepo.Get(APIURLEnvKey)
	}
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}

	retries := params.Retries
	if retries == 0 {
		if parsed, err := strconv.Atoi(envRepo.Get(RetriesEnvKey)); err == nil && parsed > 0 {
			retries = parsed
		}
	}

	api := network.NewClient(network.NewClientParams{
		BaseURL:    baseURL,
		Token:      token,
		Retries:    retries,
		Timeout:    params.Timeout,
		HTTPClient: params.HTTPClient,
		Logger:     logger,
	})

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: params.Timeout}
	}

	return &Client{
		api:        api,
		httpClient: httpClient,
		envRepo:    envRepo,
		logger:     logger,
		tracker:    newUsageTracker(params.Tracker, logger),
	}, nil
}

// Close flushes pending telemetry. API calls need no teardown.
func (c *Client) Close() {
	c.tracker.wait()
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if len(path) > maximumPathnameLength {
		return fmt.Errorf("path is too long, maximum length is %d", maximumPathnameLength)
	}
	if strings.Contains(path, "//") {
		return fmt.Errorf(`path cannot contain "//", please encode it if needed`)
	}
	return nil
}

func isURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}
