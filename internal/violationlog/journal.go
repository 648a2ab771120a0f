package violationlog

import (
	"context"
	"sync"
	"time"

	"proctor/internal/violation"
)

// Entry is one immutable audit record.
type Entry struct {
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      violation.Kind `json:"kind"`
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
}

// String renders the entry as an audit line: "<timestamp>: <message>".
func (e Entry) String() string {
	return e.Timestamp.UTC().Format(time.RFC3339Nano) + ": " + e.Message
}

// Sink receives every entry after it has been appended in memory.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// Journal is the in-process, append-only violation log. Append is meant for
// a single writer; ReadAll may be called from any goroutine.
type Journal struct {
	mu      sync.RWMutex
	entries []Entry
	nextSeq int64

	sink    Sink
	onError func(Entry, error)
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithSink forwards appended entries to sink. Sink failures never remove the
// entry from memory; they are reported through the error callback.
func WithSink(sink Sink) JournalOption {
	return func(j *Journal) {
		j.sink = sink
	}
}

// WithSinkErrorHandler installs the callback used when the sink fails.
func WithSinkErrorHandler(fn func(Entry, error)) JournalOption {
	return func(j *Journal) {
		j.onError = fn
	}
}

// NewJournal returns an empty journal.
func NewJournal(opts ...JournalOption) *Journal {
	j := &Journal{nextSeq: 1}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Append stores entry with the next sequence number and returns the stored
// copy. A zero timestamp is replaced with the current time.
func (j *Journal) Append(ctx context.Context, entry Entry) Entry {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Message == "" {
		entry.Message = entry.Kind.Message()
	}

	j.mu.Lock()
	entry.Seq = j.nextSeq
	j.nextSeq++
	j.entries = append(j.entries, entry)
	sink := j.sink
	onError := j.onError
	j.mu.Unlock()

	if sink != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := sink.Write(ctx, entry); err != nil && onError != nil {
			onError(entry, err)
		}
	}
	return entry
}

// ReadAll returns every entry in insertion order.
func (j *Journal) ReadAll() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Since returns the entries with Seq greater than seq.
func (j *Journal) Since(seq int64) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	idx := 0
	for idx < len(j.entries) && j.entries[idx].Seq <= seq {
		idx++
	}
	out := make([]Entry, len(j.entries)-idx)
	copy(out, j.entries[idx:])
	return out
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}
