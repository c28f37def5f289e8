package blob

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
)

// usageTracker enqueues usage events on the configured analytics tracker.
// Events are delivered asynchronously; a lost event never fails or delays
// the operation that produced it.
type usageTracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

func newUsageTracker(tracker analytics.Tracker, logger log.Logger) usageTracker {
	if tracker == nil {
		return usageTracker{tracker: noopTracker{}, logger: logger}
	}
	return usageTracker{tracker: tracker, logger: logger}
}

func (t usageTracker) logPut(multipart bool, sizeBytes int64, contentType string) {
	properties := analytics.Properties{
		"multipart":  multipart,
		"size_bytes": sizeBytes,
	}
	if contentType != "" {
		properties["content_type"] = contentType
	}
	t.tracker.Enqueue("blob_put", properties)
}

func (t usageTracker) logDelete(count int) {
	t.tracker.Enqueue("blob_delete", analytics.Properties{"count": count})
}

func (t usageTracker) logCopy() {
	t.tracker.Enqueue("blob_copy", analytics.Properties{})
}

func (t usageTracker) logGet(sizeBytes int64) {
	t.tracker.Enqueue("blob_get", analytics.Properties{"size_bytes": sizeBytes})
}

func (t usageTracker) logDownload(sizeBytes int64, downloadTime time.Duration) {
	t.tracker.Enqueue("blob_download", analytics.Properties{
		"size_bytes":      sizeBytes,
		"download_time_s": downloadTime.Truncate(time.Second).Seconds(),
	})
}

func (t usageTracker) wait() {
	t.tracker.Wait()
}

type noopTracker struct{}

func (noopTracker) Enqueue(string, ...analytics.Properties) {}
func (noopTracker) Wait()                                   {}
