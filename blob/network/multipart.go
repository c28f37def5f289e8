package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/blobvault/blobvault-go/blob/network/partuploader"
)

const (
	headerMPUAction     = "x-mpu-action"
	headerMPUUploadID   = "x-mpu-upload-id"
	headerMPUKey        = "x-mpu-key"
	headerMPUPartNumber = "x-mpu-part-number"
)

// multipartSession is the immutable record of a create-upload handshake.
// It is created once and only read afterwards.
type multipartSession struct {
	uploadID string
	key      string
	path     string
	headers  map[string]string
}

type createMultipartResponse struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

type uploadPartResponse struct {
	ETag string `json:"etag"`
}

// mpuHeaders builds the action headers of one multipart call on top of the
// caller's upload headers. The key travels percent-encoded.
func mpuHeaders(base map[string]string, action string, session *multipartSession, partNumber int, jsonBody bool) map[string]string {
	headers := make(map[string]string, len(base)+4)
	for k, v := range base {
		headers[k] = v
	}
	headers[headerMPUAction] = action
	if jsonBody {
		headers["Content-Type"] = "application/json"
	}
	if session != nil {
		headers[headerMPUKey] = encodeKey(session.key)
		headers[headerMPUUploadID] = session.uploadID
	}
	if partNumber > 0 {
		headers[headerMPUPartNumber] = strconv.Itoa(partNumber)
	}
	return headers
}

// encodeKey percent-encodes every byte of the key except unreserved
// characters, so the header value survives keys with reserved characters
// like "$", "&", "+", ":", "=" and "@" that looser escapers leave literal.
func encodeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func (c *Client) createMultipartUpload(ctx context.Context, path string, headers map[string]string) (*multipartSession, error) {
	body, err := c.do(ctx, apiRequest{
		method:  "POST",
		path:    "/mpu",
		headers: mpuHeaders(headers, "create", nil, 0, false),
		query:   url.Values{"pathname": {path}},
	})
	if err != nil {
		return nil, err
	}

	var response createMultipartResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode create multipart response: %w", err)
	}

	return &multipartSession{
		uploadID: response.UploadID,
		key:      response.Key,
		path:     path,
		headers:  headers,
	}, nil
}

func (c *Client) uploadPart(
	ctx context.Context,
	session *multipartSession,
	partNumber int,
	body []byte,
	onProgress partuploader.ProgressFunc,
) (partuploader.PartResult, error) {
	total := int64(len(body))
	var progress func(loaded int64)
	if onProgress != nil {
		progress = func(loaded int64) {
			onProgress(partuploader.NewProgressEvent(loaded, total))
		}
	}

	responseBody, err := c.do(ctx, apiRequest{
		method:     "POST",
		path:       "/mpu",
		headers:    mpuHeaders(session.headers, "upload", session, partNumber, false),
		query:      url.Values{"pathname": {session.path}},
		body:       body,
		onProgress: progress,
	})
	if err != nil {
		return partuploader.PartResult{}, err
	}

	var response uploadPartResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return partuploader.PartResult{}, fmt.Errorf("decode upload part response: %w", err)
	}
	return partuploader.PartResult{PartNumber: partNumber, ETag: response.ETag}, nil
}

// completeMultipartUpload finalizes the upload. The part list is sorted
// ascending by part number before it is sent, whatever order the parts
// finished uploading in.
func (c *Client) completeMultipartUpload(ctx context.Context, session *multipartSession, parts []partuploader.PartResult) (*PutResult, error) {
	ordered := make([]partuploader.PartResult, len(parts))
	copy(ordered, parts)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PartNumber < ordered[j].PartNumber
	})

	body, err := json.Marshal(ordered)
	if err != nil {
		return nil, fmt.Errorf("marshal part list: %w", err)
	}

	responseBody, err := c.do(ctx, apiRequest{
		method:  "POST",
		path:    "/mpu",
		headers: mpuHeaders(session.headers, "complete", session, 0, true),
		query:   url.Values{"pathname": {session.path}},
		body:    body,
	})
	if err != nil {
		return nil, err
	}
	return decodePutResult(responseBody)
}
