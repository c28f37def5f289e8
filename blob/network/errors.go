package network

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// ErrorKind classifies service errors into the categories callers can act
// on. Classification is based on the machine-readable error code the
// service returns, never on message text.
type ErrorKind int

const (
	// KindUnknown covers unrecognized error codes and transport failures
	// that survived the retry budget.
	KindUnknown ErrorKind = iota
	KindAccessDenied
	KindNotFound
	KindStoreNotFound
	KindStoreSuspended
	KindContentTypeNotAllowed
	KindPathnameMismatch
	KindTokenExpired
	KindFileTooLarge
	KindRateLimited
	KindServiceUnavailable
	KindBadRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindAccessDenied:
		return "access denied"
	case KindNotFound:
		return "not found"
	case KindStoreNotFound:
		return "store not found"
	case KindStoreSuspended:
		return "store suspended"
	case KindContentTypeNotAllowed:
		return "content type not allowed"
	case KindPathnameMismatch:
		return "pathname mismatch"
	case KindTokenExpired:
		return "token expired"
	case KindFileTooLarge:
		return "file too large"
	case KindRateLimited:
		return "rate limited"
	case KindServiceUnavailable:
		return "service unavailable"
	case KindBadRequest:
		return "bad request"
	default:
		return "unknown error"
	}
}

// APIError is the typed error surfaced for every failed service call.
// After the retry budget is exhausted the caller always receives an
// APIError, never a raw transport error.
type APIError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Status  int

	// RetryAfter is the best-effort retry hint in seconds carried by rate
	// limited responses. Zero when the header was absent or invalid.
	RetryAfter int

	cause error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("blob API error (%s): %s", e.Kind, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("blob API error (%s): %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("blob API error (%s)", e.Kind)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// AsAPIError unwraps err into an *APIError if there is one in its chain.
func AsAPIError(err error) (*APIError, bool) {
	for err != nil {
		if apiErr, ok := err.(*APIError); ok {
			return apiErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

const maxErrorBodySize = 64 * 1024

// decodeErrorCode reads the error payload of a failed response and returns
// the service error code and message. The body is restored so it can be
// read again; an unparseable payload yields the code "unknown_error",
// which is retryable.
func decodeErrorCode(resp *http.Response) (code, message string) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return "unknown_error", ""
	}

	var decoded errorResponse
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Error.Code == "" {
		return "unknown_error", ""
	}
	return decoded.Error.Code, decoded.Error.Message
}

func retryableCode(code string) bool {
	switch code {
	case "unknown_error", "service_unavailable", "internal_server_error":
		return true
	default:
		return false
	}
}

// classifyResponse maps a failed response to its typed error.
func classifyResponse(resp *http.Response) *APIError {
	code, message := decodeErrorCode(resp)

	apiErr := &APIError{
		Code:    code,
		Message: message,
		Status:  resp.StatusCode,
	}

	switch code {
	case "forbidden":
		apiErr.Kind = KindAccessDenied
	case "not_found":
		apiErr.Kind = KindNotFound
	case "store_not_found":
		apiErr.Kind = KindStoreNotFound
	case "store_suspended":
		apiErr.Kind = KindStoreSuspended
	case "content_type_not_allowed":
		apiErr.Kind = KindContentTypeNotAllowed
	case "client_token_pathname_mismatch":
		apiErr.Kind = KindPathnameMismatch
	case "client_token_expired":
		apiErr.Kind = KindTokenExpired
	case "file_too_large":
		apiErr.Kind = KindFileTooLarge
	case "bad_request":
		apiErr.Kind = KindBadRequest
	case "service_unavailable":
		apiErr.Kind = KindServiceUnavailable
	case "rate_limited":
		apiErr.Kind = KindRateLimited
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("retry-after"))
	default:
		apiErr.Kind = KindUnknown
	}

	return apiErr
}

// parseRetryAfter parses an integer retry-after hint. Absent or invalid
// values mean no hint.
func parseRetryAfter(value string) int {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
