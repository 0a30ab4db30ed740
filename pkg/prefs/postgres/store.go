// Package postgres is an [audio.Store] backed by PostgreSQL through
// github.com/jackc/pgx/v5.
//
// Values are cached in memory. Reads never touch the database after the
// initial load, and [Store.Save] only schedules a background flush so the
// tick goroutine never waits on the network. Several installations can share
// one table by using different profiles.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/prefs"
)

var _ audio.Store = (*Store)(nil)

// ErrClosed is returned by Save after Close.
var ErrClosed = errors.New("prefs postgres: store closed")

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "default"

// DB is the subset of [pgxpool.Pool] the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Option configures a [Store].
type Option func(*Store)

// WithProfile scopes all keys to profile.
func WithProfile(profile string) Option {
	return func(s *Store) {
		if profile != "" {
			s.profile = profile
		}
	}
}

// WithFlushTimeout bounds each background write.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.flushTimeout = d
		}
	}
}

// Breaker guards background flushes. *resilience.CircuitBreaker from this
// module satisfies it.
type Breaker interface {
	Execute(fn func() error) error
}

// WithBreaker routes background flushes through b. While b rejects calls,
// changes stay pending and the writer retries on the retry interval.
func WithBreaker(b Breaker) Option {
	return func(s *Store) { s.breaker = b }
}

// WithRetryInterval sets how long the background writer waits before
// retrying a failed or rejected flush. The default is 5 seconds.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

// Store caches preference values and writes changes back asynchronously.
// All methods are safe for concurrent use.
type Store struct {
	db            DB
	pool          *pgxpool.Pool // owned; nil when built with NewWithDB
	profile       string
	flushTimeout  time.Duration
	retryInterval time.Duration
	breaker       Breaker

	mu     sync.Mutex
	values map[string]float64
	dirty  map[string]struct{}
	closed bool

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New connects to the database at dsn, runs [Migrate] and loads the cached
// values. The returned store owns the connection pool.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("prefs postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prefs postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	s, err := NewWithDB(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool
	return s, nil
}

// NewWithDB builds a store over an existing connection. The schema must
// already exist.
func NewWithDB(ctx context.Context, db DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:            db,
		profile:       DefaultProfile,
		flushTimeout:  5 * time.Second,
		retryInterval: 5 * time.Second,
		values:        make(map[string]float64),
		dirty:         make(map[string]struct{}),
		kick:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	go s.flushLoop()
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	const q = `SELECT key, value FROM soundcue_prefs WHERE profile = $1`

	rows, err := s.db.Query(ctx, q, s.profile)
	if err != nil {
		return fmt.Errorf("prefs postgres: load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value float64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("prefs postgres: scan: %w", err)
		}
		s.values[key] = value
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("prefs postgres: load rows: %w", err)
	}
	slog.Debug("prefs postgres: loaded", "profile", s.profile, "values", len(s.values))
	return nil
}

// Float implements [audio.Store] from the cache.
func (s *Store) Float(key string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// SetFloat implements [audio.Store]. The change is written on the next Save.
func (s *Store) SetFloat(key string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.values[key]; ok && old == v {
		return
	}
	s.values[key] = v
	s.dirty[key] = struct{}{}
}

// Save implements [audio.Store]. It schedules a background flush and returns
// immediately.
func (s *Store) Save() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
	return nil
}

// Fetch reads key straight from the database, bypassing the cache.
// It returns [prefs.ErrNotFound] when the key has never been written.
func (s *Store) Fetch(ctx context.Context, key string) (float64, error) {
	const q = `SELECT value FROM soundcue_prefs WHERE profile = $1 AND key = $2`

	var v float64
	err := s.db.QueryRow(ctx, q, s.profile, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, prefs.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("prefs postgres: fetch %q: %w", key, err)
	}
	return v, nil
}

// Ping checks that the database answers a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("prefs postgres: ping: %w", err)
	}
	return nil
}

// Flush writes every pending change now.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	keys := slices.Sorted(maps.Keys(s.dirty))
	vals := make([]float64, len(keys))
	for i, k := range keys {
		vals[i] = s.values[k]
	}
	clear(s.dirty)
	s.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}

	const q = `
		INSERT INTO soundcue_prefs (profile, key, value)
		SELECT $1, k, v FROM unnest($2::text[], $3::float8[]) AS t(k, v)
		ON CONFLICT (profile, key) DO UPDATE
		    SET value = EXCLUDED.value, updated_at = now()`

	if _, err := s.db.Exec(ctx, q, s.profile, keys, vals); err != nil {
		s.mu.Lock()
		for _, k := range keys {
			s.dirty[k] = struct{}{}
		}
		s.mu.Unlock()
		return fmt.Errorf("prefs postgres: flush: %w", err)
	}
	return nil
}

func (s *Store) backgroundFlush() error {
	flush := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
		defer cancel()
		return s.Flush(ctx)
	}
	if s.breaker == nil {
		return flush()
	}
	return s.breaker.Execute(flush)
}

// flushLoop writes on every Save kick. A failed flush leaves its changes
// pending and arms a retry, so they reach the database without another Save.
func (s *Store) flushLoop() {
	defer close(s.done)
	var retry <-chan time.Time
	for {
		select {
		case <-s.stop:
			return
		case <-s.kick:
		case <-retry:
		}
		retry = nil
		if err := s.backgroundFlush(); err != nil {
			slog.Warn("prefs postgres: background flush failed", "profile", s.profile, "retry_in", s.retryInterval, "err", err)
			if s.pending() {
				retry = time.After(s.retryInterval)
			}
		}
	}
}

func (s *Store) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) > 0
}

// Close stops the background writer, flushes what is pending and releases
// the connection pool if the store owns one.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()
	err := s.Flush(ctx)
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
