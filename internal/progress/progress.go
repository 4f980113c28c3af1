// Package progress tracks ingestion job lifecycles through a small
// state machine:
//
//	pending → downloading → extracting → processing → completed
//
// with failed reachable from any non-terminal state. Records live in
// memory and are written through to durable storage best-effort, so a
// routing layer can answer progress queries across restarts.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"geopipe/internal/logging"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusExtracting  Status = "extracting"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is the progress state of one job id.
type Record struct {
	JobID           string
	Source          string
	DataType        string
	Status          Status
	Percent         float64
	TotalBytes      int64
	DownloadedBytes int64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store persists progress records, upserted by job id.
type Store interface {
	PutProgress(ctx context.Context, rec Record) error
	GetProgress(ctx context.Context, jobID string) (*Record, error)
}

// Update is a partial mutation applied by Tracker.Update. Zero-valued
// fields are left untouched; Percent only ever moves forward.
type Update struct {
	Percent         float64
	Status          Status
	TotalBytes      int64
	DownloadedBytes int64
}

// Tracker owns the progress records for this process. One record per
// job id; terminal records stay until explicitly restarted via Create.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record
	store   Store
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStore attaches a durable record store.
func WithStore(s Store) Option {
	return func(t *Tracker) { t.store = s }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker builds an empty tracker.
func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		records: make(map[string]*Record),
		logger:  logging.Default(logger).With("component", "progress"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create starts a new pending record for jobID. An existing record under
// the same id, including a failed one being restarted, is overwritten
// and its counters reset.
func (t *Tracker) Create(ctx context.Context, jobID, source, dataType string) {
	now := t.now()
	rec := &Record{
		JobID:     jobID,
		Source:    source,
		DataType:  dataType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.mu.Lock()
	t.records[jobID] = rec
	snapshot := *rec
	t.mu.Unlock()

	t.persist(ctx, snapshot)
}

// Update applies a partial mutation. Unknown job ids and updates to
// terminal records are ignored. Percent is monotonic: a lower value
// than the current one is dropped.
func (t *Tracker) Update(ctx context.Context, jobID string, u Update) {
	t.mu.Lock()
	rec, ok := t.records[jobID]
	if !ok || rec.Status.terminal() {
		t.mu.Unlock()
		return
	}
	if u.Status != "" {
		rec.Status = u.Status
	}
	if u.Percent > rec.Percent {
		rec.Percent = u.Percent
	}
	if u.TotalBytes > 0 {
		rec.TotalBytes = u.TotalBytes
	}
	if u.DownloadedBytes > rec.DownloadedBytes {
		rec.DownloadedBytes = u.DownloadedBytes
	}
	rec.UpdatedAt = t.now()
	snapshot := *rec
	t.mu.Unlock()

	t.persist(ctx, snapshot)
}

// Complete marks the job completed at 100 percent.
func (t *Tracker) Complete(ctx context.Context, jobID string) {
	t.Update(ctx, jobID, Update{Status: StatusCompleted, Percent: 100})
}

// Fail marks the job failed with a message. Terminal records are not
// resurrected.
func (t *Tracker) Fail(ctx context.Context, jobID, message string) {
	t.mu.Lock()
	rec, ok := t.records[jobID]
	if !ok || rec.Status.terminal() {
		t.mu.Unlock()
		return
	}
	rec.Status = StatusFailed
	rec.ErrorMessage = message
	rec.UpdatedAt = t.now()
	snapshot := *rec
	t.mu.Unlock()

	t.persist(ctx, snapshot)
}

// Get returns a copy of the record, or (nil, false) for an unknown job
// id; absence is "unknown job", not an error. Falls through to the
// durable store for jobs created before a restart.
func (t *Tracker) Get(ctx context.Context, jobID string) (*Record, bool) {
	t.mu.Lock()
	rec, ok := t.records[jobID]
	if ok {
		snapshot := *rec
		t.mu.Unlock()
		return &snapshot, true
	}
	t.mu.Unlock()

	if t.store == nil {
		return nil, false
	}
	stored, err := t.store.GetProgress(ctx, jobID)
	if err != nil {
		t.logger.Warn("reading progress record failed", "job", jobID, "error", err)
		return nil, false
	}
	if stored == nil {
		return nil, false
	}
	return stored, true
}

func (t *Tracker) persist(ctx context.Context, rec Record) {
	if t.store == nil {
		return
	}
	if err := t.store.PutProgress(ctx, rec); err != nil {
		t.logger.Warn("persisting progress record failed", "job", rec.JobID, "error", err)
	}
}
