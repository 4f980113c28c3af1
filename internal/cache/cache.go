// Package cache stores processed feature collections in two tiers: a
// fast in-process map and a durable key/value store that survives
// restarts. The memory tier is always a subset of the durable tier and
// may be evicted independently; a read that misses in memory falls
// through to durable storage and repopulates the memory tier on a hit.
//
// Durable-store failures degrade to cache-miss / no-op behavior. They
// are logged and never surface as pipeline failures.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"geopipe/internal/geo"
	"geopipe/internal/logging"
)

// Entry is a decoded cache entry.
type Entry struct {
	Key       string
	Source    string
	DataType  string
	Payload   *geo.Collection
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Row is the durable representation of an entry; the payload is
// msgpack-encoded so the durable store stays format-agnostic.
type Row struct {
	Key       string
	Source    string
	DataType  string
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// DurableStore is the durable tier. GetCacheRow must only return rows
// whose expiry is after now; PutCacheRow upserts by key.
type DurableStore interface {
	GetCacheRow(ctx context.Context, key string, now time.Time) (*Row, error)
	PutCacheRow(ctx context.Context, row Row) error
	DeleteExpiredCacheRows(ctx context.Context, now time.Time) (int64, error)
}

// Key derives the deterministic cache key for (source, dataset,
// options). Option order never matters: two option maps that are equal
// after key sorting always produce the same key. Every component is
// length-prefixed before hashing so option values containing separator
// characters cannot collide with differently split maps.
func Key(source, dataset string, opts map[string]string) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	part := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	part(source)
	part(dataset)
	for _, k := range keys {
		part(k)
		part(opts[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return source + ":" + dataset + ":" + hex.EncodeToString(sum[:16])
}

// Store composes the two tiers. Construct once at process start.
type Store struct {
	mem     *memoryTier
	durable DurableStore
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore builds a two-tier store over the given durable tier. A nil
// durable tier leaves the memory tier operating alone.
func NewStore(durable DurableStore, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		mem:     newMemoryTier(),
		durable: durable,
		logger:  logging.Default(logger).With("component", "cache"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached entry for key, or nil on miss. Memory first;
// durable fallthrough repopulates the memory tier.
func (s *Store) Get(ctx context.Context, key string) *Entry {
	now := s.now()
	if e, ok := s.mem.get(key, now); ok {
		return e
	}
	if s.durable == nil {
		return nil
	}

	row, err := s.durable.GetCacheRow(ctx, key, now)
	if err != nil {
		s.logger.Warn("durable cache read failed, treating as miss", "key", key, "error", err)
		return nil
	}
	if row == nil {
		return nil
	}

	var payload geo.Collection
	if err := msgpack.Unmarshal(row.Payload, &payload); err != nil {
		s.logger.Warn("durable cache row undecodable, treating as miss", "key", key, "error", err)
		return nil
	}
	entry := Entry{
		Key:       row.Key,
		Source:    row.Source,
		DataType:  row.DataType,
		Payload:   &payload,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}
	s.mem.set(entry)
	return &entry
}

// Set writes the payload to both tiers with expiry now+ttl. An existing
// key is overwritten in place, never duplicated. A durable write
// failure leaves the memory tier populated and is logged.
func (s *Store) Set(ctx context.Context, key string, payload *geo.Collection, source, dataType string, ttl time.Duration) {
	now := s.now()
	entry := Entry{
		Key:       key,
		Source:    source,
		DataType:  dataType,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.mem.set(entry)

	if s.durable == nil {
		return
	}
	encoded, err := msgpack.Marshal(payload)
	if err != nil {
		s.logger.Warn("encoding cache payload failed, durable tier skipped", "key", key, "error", err)
		return
	}
	row := Row{
		Key:       key,
		Source:    source,
		DataType:  dataType,
		Payload:   encoded,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	}
	if err := s.durable.PutCacheRow(ctx, row); err != nil {
		s.logger.Warn("durable cache write failed", "key", key, "error", err)
	}
}

// Clear drops the memory tier immediately. Durable rows are reclaimed
// by expiry or the background sweep, not here.
func (s *Store) Clear() {
	s.mem.clear()
}

// SweepDurable deletes durable rows whose expiry has passed. The memory
// tier self-expires and needs no sweeping.
func (s *Store) SweepDurable(ctx context.Context) {
	if s.durable == nil {
		return
	}
	n, err := s.durable.DeleteExpiredCacheRows(ctx, s.now())
	if err != nil {
		s.logger.Warn("cache sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("cache sweep removed expired rows", "rows", n)
	}
}
