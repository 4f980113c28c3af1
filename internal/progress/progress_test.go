package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"geopipe/internal/logging"
)

func newTestTracker(t *testing.T, opts ...Option) *Tracker {
	t.Helper()
	return NewTracker(logging.Discard(), opts...)
}

func TestLifecycle(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Create(ctx, "job-1", "census", "counties")

	rec, ok := tr.Get(ctx, "job-1")
	if !ok {
		t.Fatal("expected record")
	}
	if rec.Status != StatusPending || rec.Percent != 0 {
		t.Errorf("initial record: %+v", rec)
	}

	tr.Update(ctx, "job-1", Update{Status: StatusDownloading, Percent: 25, TotalBytes: 1000, DownloadedBytes: 500})
	tr.Update(ctx, "job-1", Update{Status: StatusExtracting, Percent: 60})
	tr.Update(ctx, "job-1", Update{Status: StatusProcessing, Percent: 80})
	tr.Complete(ctx, "job-1")

	rec, _ = tr.Get(ctx, "job-1")
	if rec.Status != StatusCompleted || rec.Percent != 100 {
		t.Errorf("final record: %+v", rec)
	}
}

func TestPercentMonotonic(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Create(ctx, "job-1", "census", "counties")
	tr.Update(ctx, "job-1", Update{Percent: 50})
	tr.Update(ctx, "job-1", Update{Percent: 30})

	rec, _ := tr.Get(ctx, "job-1")
	if rec.Percent != 50 {
		t.Errorf("percent = %v, want 50 (lower updates dropped)", rec.Percent)
	}
}

func TestFail(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Create(ctx, "job-1", "census", "counties")
	tr.Update(ctx, "job-1", Update{Status: StatusDownloading, Percent: 10})
	tr.Fail(ctx, "job-1", "connection reset")

	rec, _ := tr.Get(ctx, "job-1")
	if rec.Status != StatusFailed {
		t.Errorf("status = %v", rec.Status)
	}
	if rec.ErrorMessage == "" {
		t.Error("failed record must carry an error message")
	}

	// Terminal records are not resurrected by further updates.
	tr.Update(ctx, "job-1", Update{Status: StatusProcessing, Percent: 90})
	rec, _ = tr.Get(ctx, "job-1")
	if rec.Status != StatusFailed || rec.Percent != 10 {
		t.Errorf("terminal record mutated: %+v", rec)
	}
}

func TestRestartOverwrites(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Create(ctx, "job-1", "census", "counties")
	tr.Fail(ctx, "job-1", "boom")

	// Restart under the same id: fresh pending record, counters reset.
	tr.Create(ctx, "job-1", "census", "counties")
	rec, _ := tr.Get(ctx, "job-1")
	if rec.Status != StatusPending || rec.Percent != 0 || rec.ErrorMessage != "" {
		t.Errorf("restarted record: %+v", rec)
	}
}

func TestGet_UnknownJob(t *testing.T) {
	tr := newTestTracker(t)
	rec, ok := tr.Get(context.Background(), "nope")
	if ok || rec != nil {
		t.Error("unknown job must return (nil, false)")
	}
}

type memStore struct {
	mu   sync.Mutex
	recs map[string]Record
	fail bool
}

func (s *memStore) PutProgress(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	if s.recs == nil {
		s.recs = make(map[string]Record)
	}
	s.recs[rec.JobID] = rec
	return nil
}

func (s *memStore) GetProgress(_ context.Context, jobID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[jobID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func TestWriteThrough(t *testing.T) {
	store := &memStore{}
	tr := newTestTracker(t, WithStore(store))
	ctx := context.Background()

	tr.Create(ctx, "job-1", "census", "counties")
	tr.Update(ctx, "job-1", Update{Status: StatusDownloading, Percent: 40})

	if store.recs["job-1"].Percent != 40 {
		t.Errorf("persisted percent = %v", store.recs["job-1"].Percent)
	}

	// A fresh tracker with the same store finds the record durably.
	tr2 := newTestTracker(t, WithStore(store))
	rec, ok := tr2.Get(ctx, "job-1")
	if !ok || rec.Percent != 40 {
		t.Errorf("durable fallthrough: ok=%v rec=%+v", ok, rec)
	}
}

func TestStoreFailureNonFatal(t *testing.T) {
	store := &memStore{fail: true}
	tr := newTestTracker(t, WithStore(store))
	ctx := context.Background()

	tr.Create(ctx, "job-1", "census", "counties")
	tr.Update(ctx, "job-1", Update{Percent: 10})

	// In-memory record is authoritative despite the failing store.
	rec, ok := tr.Get(ctx, "job-1")
	if !ok || rec.Percent != 10 {
		t.Errorf("rec = %+v", rec)
	}
}

func TestUpdatedAtAdvances(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(logging.Discard(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	tr.Create(ctx, "job-1", "census", "counties")
	now = now.Add(time.Minute)
	tr.Update(ctx, "job-1", Update{Percent: 5})

	rec, _ := tr.Get(ctx, "job-1")
	if !rec.UpdatedAt.After(rec.CreatedAt) {
		t.Errorf("updated_at %v should be after created_at %v", rec.UpdatedAt, rec.CreatedAt)
	}
}
