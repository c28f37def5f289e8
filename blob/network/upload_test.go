package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobvault/blobvault-go/blob/network/partuploader"
)

// multipartServer mimics the service's multipart endpoint: create hands out
// an upload id, upload stores part bodies, complete checks the part list
// and reassembles the object.
type multipartServer struct {
	t *testing.T

	mu           sync.Mutex
	uploadID     string
	key          string
	parts        map[int][]byte
	etags        map[int]string
	completeBody []byte
	singlePuts   int
	mpuCreates   int
}

func newMultipartServer(t *testing.T) *multipartServer {
	return &multipartServer{
		t:        t,
		uploadID: "upload-42",
		key:      "objects/archive v1.bin",
		parts:    map[int][]byte{},
		etags:    map[int]string{},
	}
}

func (s *multipartServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mpu" {
			s.mu.Lock()
			s.singlePuts++
			s.mu.Unlock()
			fmt.Fprint(w, `{"url": "https://store.example.com/single", "pathname": "single"}`)
			return
		}

		switch r.Header.Get(headerMPUAction) {
		case "create":
			s.mu.Lock()
			s.mpuCreates++
			s.mu.Unlock()
			response := map[string]string{"uploadId": s.uploadID, "key": s.key}
			require.NoError(s.t, json.NewEncoder(w).Encode(response))

		case "upload":
			assert.Equal(s.t, s.uploadID, r.Header.Get(headerMPUUploadID))
			assert.Equal(s.t, "objects%2Farchive%20v1.bin", r.Header.Get(headerMPUKey))

			partNumber, err := strconv.Atoi(r.Header.Get(headerMPUPartNumber))
			require.NoError(s.t, err)
			body, err := io.ReadAll(r.Body)
			require.NoError(s.t, err)

			etag := fmt.Sprintf(`"etag-%d"`, partNumber)
			s.mu.Lock()
			s.parts[partNumber] = body
			s.etags[partNumber] = etag
			s.mu.Unlock()

			fmt.Fprintf(w, `{"etag": %q}`, etag)

		case "complete":
			assert.Equal(s.t, s.uploadID, r.Header.Get(headerMPUUploadID))
			assert.Equal(s.t, "application/json", r.Header.Get("Content-Type"))

			body, err := io.ReadAll(r.Body)
			require.NoError(s.t, err)
			s.mu.Lock()
			s.completeBody = body
			s.mu.Unlock()

			fmt.Fprint(w, `{"url": "https://store.example.com/objects/archive", "pathname": "objects/archive.bin", "downloadUrl": "https://store.example.com/objects/archive?download=1"}`)

		default:
			s.t.Errorf("unexpected multipart action %q", r.Header.Get(headerMPUAction))
			w.WriteHeader(http.StatusBadRequest)
		}
	})
}

func (s *multipartServer) reassembled() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	for i := 1; i <= len(s.parts); i++ {
		data = append(data, s.parts[i]...)
	}
	return data
}

func TestClient_Upload_Multipart(t *testing.T) {
	server := newMultipartServer(t)
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	const partSize = 5 * 1024 * 1024
	input := make([]byte, 2*partSize+1)
	for i := range input {
		input[i] = byte(i % 251)
	}

	var mu sync.Mutex
	var events []partuploader.ProgressEvent

	client := newTestClient(t, ts.URL, 1)
	result, err := client.Upload(context.Background(), UploadParams{
		Path:     "objects/archive.bin",
		Body:     bytes.NewReader(input),
		Size:     int64(len(input)),
		PartSize: partSize,
		OnProgress: func(event partuploader.ProgressEvent) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "objects/archive.bin", result.Pathname)
	assert.Equal(t, "https://store.example.com/objects/archive?download=1", result.DownloadURL)

	assert.Equal(t, 1, server.mpuCreates)
	assert.Equal(t, 0, server.singlePuts)
	require.Len(t, server.parts, 3)
	assert.Len(t, server.parts[1], partSize)
	assert.Len(t, server.parts[2], partSize)
	assert.Len(t, server.parts[3], 1)
	assert.Equal(t, input, server.reassembled())

	// the completion payload lists parts ascending, whatever order they
	// finished in
	var completed []partuploader.PartResult
	require.NoError(t, json.Unmarshal(server.completeBody, &completed))
	require.Len(t, completed, 3)
	for i, part := range completed {
		assert.Equal(t, i+1, part.PartNumber)
		assert.Equal(t, server.etags[i+1], part.ETag)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, int64(len(input)), last.Loaded)
	assert.Equal(t, float64(100), last.Percentage)
}

func TestClient_Upload_SmallBodyIsSingleShot(t *testing.T) {
	var singlePuts, mpuCalls int
	var receivedPathname string
	var receivedBody []byte

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/mpu" {
			mpuCalls++
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		singlePuts++
		receivedPathname = r.URL.Query().Get("pathname")
		var err error
		receivedBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		fmt.Fprint(w, `{"url": "https://store.example.com/small.txt", "pathname": "small.txt"}`)
	}))
	defer ts.Close()

	input := []byte("well under the multipart threshold")

	client := newTestClient(t, ts.URL, 1)
	result, err := client.Upload(context.Background(), UploadParams{
		Path: "small.txt",
		Body: bytes.NewReader(input),
		Size: int64(len(input)),
	})
	require.NoError(t, err)

	assert.Equal(t, "small.txt", result.Pathname)
	assert.Equal(t, 1, singlePuts)
	assert.Equal(t, 0, mpuCalls, "small bodies must never touch the multipart endpoint")
	assert.Equal(t, "small.txt", receivedPathname)
	assert.Equal(t, input, receivedBody)
}

func TestClient_Upload_UnknownSizeForcesMultipart(t *testing.T) {
	server := newMultipartServer(t)
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	input := []byte("tiny body of unknown length")

	client := newTestClient(t, ts.URL, 1)
	_, err := client.Upload(context.Background(), UploadParams{
		Path: "stream.bin",
		Body: bytes.NewReader(input),
		Size: -1,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, server.mpuCreates)
	assert.Equal(t, 0, server.singlePuts)
	assert.Equal(t, input, server.reassembled())
}

func TestClient_Upload_ForcedMultipart(t *testing.T) {
	server := newMultipartServer(t)
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	input := []byte("small but forced through the multipart path")

	client := newTestClient(t, ts.URL, 1)
	_, err := client.Upload(context.Background(), UploadParams{
		Path:      "forced.bin",
		Body:      bytes.NewReader(input),
		Size:      int64(len(input)),
		Multipart: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, server.mpuCreates)
	assert.Equal(t, 0, server.singlePuts)
}

func TestClient_Upload_RejectsSmallPartSize(t *testing.T) {
	client := NewClient(NewClientParams{BaseURL: "http://localhost:1", Token: testToken, Logger: log.NewLogger()})
	_, err := client.Upload(context.Background(), UploadParams{
		Path:      "x.bin",
		Body:      bytes.NewReader([]byte("data")),
		Size:      -1,
		PartSize:  1024,
		Multipart: true,
	})
	assert.ErrorIs(t, err, partuploader.ErrPartSizeTooSmall)
}

func TestClient_Upload_CreateFailureIsTerminal(t *testing.T) {
	var uploads int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get(headerMPUAction) {
		case "create":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error": {"code": "forbidden", "message": "token lacks write access"}}`)
		default:
			uploads++
		}
	}))
	defer ts.Close()

	input := make([]byte, MultipartThreshold+1)

	client := newTestClient(t, ts.URL, 1)
	_, err := client.Upload(context.Background(), UploadParams{
		Path: "denied.bin",
		Body: bytes.NewReader(input),
		Size: int64(len(input)),
	})

	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindAccessDenied, apiErr.Kind)
	assert.Equal(t, 0, uploads, "no parts may be uploaded when the handshake fails")
}
