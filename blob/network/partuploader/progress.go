package partuploader

import "sync"

// ProgressEvent is a snapshot of upload progress. Total is 0 when the
// final size of the upload is not known upfront, in which case Percentage
// stays at 0 until the upload finishes.
type ProgressEvent struct {
	Loaded     int64
	Total      int64
	Percentage float64
}

// ProgressFunc receives progress updates during an upload.
type ProgressFunc func(event ProgressEvent)

// NewProgressEvent derives the percentage from loaded and total; the
// percentage is 0 while the total is unknown.
func NewProgressEvent(loaded, total int64) ProgressEvent {
	var percentage float64
	if total > 0 {
		percentage = float64(loaded) / float64(total) * 100
	}
	return ProgressEvent{
		Loaded:     loaded,
		Total:      total,
		Percentage: percentage,
	}
}

// progressTable aggregates per-part progress into a single stream of events.
// It is the only state shared between concurrently uploading parts, so all
// access goes through one mutex. A part that retries streams its body again
// from zero; the table keeps the highest value seen per part so the
// aggregate never decreases.
type progressTable struct {
	total    int64
	callback ProgressFunc

	mu     sync.Mutex
	loaded map[int]int64
}

func newProgressTable(total int64, callback ProgressFunc) *progressTable {
	return &progressTable{
		total:    total,
		callback: callback,
		loaded:   map[int]int64{},
	}
}

func (p *progressTable) update(partNumber int, loaded int64) {
	if p.callback == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if loaded <= p.loaded[partNumber] {
		return
	}
	p.loaded[partNumber] = loaded

	var sum int64
	for _, l := range p.loaded {
		sum += l
	}
	p.callback(NewProgressEvent(sum, p.total))
}

// finish emits the terminal event: loaded equals the expected total, or the
// summed part sizes when the total was unknown, and percentage is 100.
func (p *progressTable) finish() {
	if p.callback == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.total
	if total == 0 {
		for _, l := range p.loaded {
			total += l
		}
	}
	p.callback(ProgressEvent{Loaded: total, Total: total, Percentage: 100})
}
