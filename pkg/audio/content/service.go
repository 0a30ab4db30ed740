// Package content is the streaming layer between sound events and decoded
// clips. It tracks per-asset load state, reference counts from preloads and
// named scopes, and in-use counts from playing voices, and unloads assets a
// grace period after the last holder lets go.
//
// A Service is owned by a single goroutine (the engine tick). Loads are
// started through an [audio.Loader] and polled; nothing here blocks on them.
package content

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
)

// State is the load state of one asset.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unloaded"
	}
}

// notMarked means the record is not yet an eviction candidate.
const notMarked time.Duration = -1

type record struct {
	key   string
	state State
	op    audio.LoadOp
	clip  *audio.Clip
	err   error

	refs  int
	inUse int

	// candidateSince is when the record became eligible for eviction, or
	// notMarked.
	candidateSince time.Duration
}

func (r *record) held() bool { return r.refs > 0 || r.inUse > 0 }

// WeightedClip is a loaded clip with its selection weight.
type WeightedClip struct {
	Clip   *audio.Clip
	Weight float64
}

// Option configures a [Service].
type Option func(*Service)

// WithContext sets the context passed to the loader. Cancelling it cancels
// in-flight loads that honour it.
func WithContext(ctx context.Context) Option {
	return func(s *Service) { s.ctx = ctx }
}

// WithRecorder reports load outcomes and evictions to rec.
func WithRecorder(rec audio.Recorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.rec = rec
		}
	}
}

// Service implements the content streaming model. The zero value is not
// usable; construct with [New].
type Service struct {
	loader audio.Loader
	ctx    context.Context
	rec    audio.Recorder

	records map[string]*record
	byClip  map[*audio.Clip]*record
	scopes  map[string]map[string]struct{}
}

// New creates a Service that loads assets through loader.
func New(loader audio.Loader, opts ...Option) *Service {
	s := &Service{
		loader:  loader,
		ctx:     context.Background(),
		rec:     audio.NopRecorder{},
		records: make(map[string]*record),
		byClip:  make(map[*audio.Clip]*record),
		scopes:  make(map[string]map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Preload starts loading every distinct asset referenced by events that is
// not already Loaded or Loading. With acquireRef each asset gains one
// reference per call; when scopeID is set it gains one only if it was newly
// added to that scope. The returned handle aggregates the started and joined
// loads.
func (s *Service) Preload(events []*catalog.Descriptor, acquireRef bool, scopeID string) *LoadHandle {
	var scope map[string]struct{}
	if scopeID != "" {
		scope = s.scopes[scopeID]
		if scope == nil {
			scope = make(map[string]struct{})
			s.scopes[scopeID] = scope
		}
	}

	dedup := make(map[string]struct{})
	var ops []audio.LoadOp
	for _, evt := range events {
		if evt == nil {
			continue
		}
		for _, key := range evt.Keys() {
			if op := s.registerReference(key, dedup, acquireRef, scope); op != nil {
				ops = append(ops, op)
			}
		}
	}
	if len(ops) == 0 {
		return Completed()
	}
	return FromOps(ops)
}

func (s *Service) registerReference(key string, dedup map[string]struct{}, acquireRef bool, scope map[string]struct{}) audio.LoadOp {
	rec := s.records[key]
	if rec == nil {
		rec = &record{key: key, candidateSince: notMarked}
		s.records[key] = rec
	}

	_, seen := dedup[key]
	isFirst := !seen
	dedup[key] = struct{}{}

	addedToScope := false
	if scope != nil {
		if _, ok := scope[key]; !ok {
			scope[key] = struct{}{}
			addedToScope = true
		}
	}

	if acquireRef {
		increment := isFirst
		if scope != nil {
			increment = addedToScope
		}
		if increment {
			rec.refs++
			rec.candidateSince = notMarked
		}
	}

	if !isFirst {
		return nil
	}
	s.settle(rec)
	if rec.state == Loaded {
		return nil
	}
	return s.ensureLoadStarted(rec)
}

func (s *Service) ensureLoadStarted(rec *record) audio.LoadOp {
	switch rec.state {
	case Loading:
		if rec.op != nil {
			return rec.op
		}
	case Failed:
		if rec.op != nil {
			rec.op.Release()
			rec.op = nil
		}
		slog.Debug("content: retrying failed load", "key", rec.key, "err", rec.err)
	}
	rec.err = nil
	rec.op = s.loader.Load(s.ctx, rec.key)
	rec.state = Loading
	rec.candidateSince = notMarked
	return rec.op
}

// settle folds a finished load operation into the record.
func (s *Service) settle(rec *record) {
	if rec.state != Loading || rec.op == nil || !rec.op.Done() {
		return
	}
	if rec.op.Status() == audio.LoadSucceeded && rec.op.Result() != nil {
		rec.clip = rec.op.Result()
		rec.state = Loaded
		s.byClip[rec.clip] = rec
		s.rec.LoadFinished(rec.key, audio.LoadSucceeded)
		return
	}
	rec.err = rec.op.Err()
	rec.state = Failed
	s.rec.LoadFinished(rec.key, audio.LoadFailed)
	slog.Warn("content: asset load failed", "key", rec.key, "err", rec.err)
}

// AcquireScope replaces the scope named scopeID with the assets of events,
// taking one reference per asset. An existing scope of that name is released
// first.
func (s *Service) AcquireScope(scopeID string, events []*catalog.Descriptor) *LoadHandle {
	if strings.TrimSpace(scopeID) == "" {
		return FailedHandle("scopeId is required.")
	}
	if _, ok := s.scopes[scopeID]; ok {
		s.ReleaseScope(scopeID)
	}
	return s.Preload(events, true, scopeID)
}

// ReleaseScope drops the references held by scopeID and forgets the scope.
func (s *Service) ReleaseScope(scopeID string) {
	scope, ok := s.scopes[scopeID]
	if !ok {
		return
	}
	for key := range scope {
		rec := s.records[key]
		if rec == nil {
			continue
		}
		rec.refs = max(0, rec.refs-1)
		if !rec.held() {
			rec.candidateSince = notMarked
		}
	}
	delete(s.scopes, scopeID)
}

// ReleaseAllScopes releases every scope.
func (s *Service) ReleaseAllScopes() {
	for id := range s.scopes {
		s.ReleaseScope(id)
	}
}

// RequestUnload asks for the assets of events to be unloaded. Assets that are
// still referenced or playing are skipped. Without immediate the asset is
// marked as a candidate from time zero, so the next [Service.Tick] past the
// grace period evicts it.
func (s *Service) RequestUnload(events []*catalog.Descriptor, immediate bool) {
	keys := make(map[string]struct{})
	for _, evt := range events {
		if evt == nil {
			continue
		}
		for _, k := range evt.Keys() {
			keys[k] = struct{}{}
		}
	}
	for key := range keys {
		rec := s.records[key]
		if rec == nil || rec.held() {
			continue
		}
		if immediate {
			s.releaseRecord(rec)
			continue
		}
		if rec.candidateSince < 0 {
			rec.candidateSince = 0
		}
	}
}

// Reload drops the decoded content of key so it is decoded again. Playing
// assets are left alone. A referenced asset starts loading again right away.
// It reports whether the asset was reset.
func (s *Service) Reload(key string) bool {
	rec := s.records[key]
	if rec == nil || rec.inUse > 0 {
		return false
	}
	if !s.releaseRecord(rec) {
		return false
	}
	if rec.refs > 0 {
		s.ensureLoadStarted(rec)
	}
	return true
}

// UnloadUnusedNow evicts every asset with no references and nothing playing,
// ignoring the grace period.
func (s *Service) UnloadUnusedNow() {
	for _, rec := range s.records {
		if rec.held() {
			continue
		}
		s.releaseRecord(rec)
	}
}

// ForceUnloadAll releases every asset and scope regardless of holders. Used
// at shutdown.
func (s *Service) ForceUnloadAll() {
	for _, rec := range s.records {
		rec.inUse = 0
		rec.refs = 0
		s.releaseRecord(rec)
	}
	clear(s.scopes)
	clear(s.byClip)
}

func (s *Service) releaseRecord(rec *record) bool {
	if rec.inUse > 0 {
		return false
	}
	wasLoaded := rec.state == Loaded
	if rec.op != nil {
		rec.op.Release()
		rec.op = nil
	}
	if rec.clip != nil {
		delete(s.byClip, rec.clip)
		rec.clip = nil
	}
	rec.state = Unloaded
	rec.err = nil
	rec.candidateSince = notMarked
	if wasLoaded {
		s.rec.ContentEvicted(rec.key)
		slog.Debug("content: asset unloaded", "key", rec.key)
	}
	return true
}

// Tick settles finished loads and evicts loaded assets that have had no
// holders for at least grace. now is a monotonic timestamp. An asset is
// first marked as a candidate and can only be evicted by a later tick, even
// with zero grace.
func (s *Service) Tick(now, grace time.Duration) {
	if grace < 0 {
		grace = 0
	}
	for _, rec := range s.records {
		s.settle(rec)
		if rec.held() {
			rec.candidateSince = notMarked
			continue
		}
		if rec.state != Loaded {
			continue
		}
		if rec.candidateSince < 0 {
			rec.candidateSince = now
			continue
		}
		if now-rec.candidateSince >= grace {
			s.releaseRecord(rec)
		}
	}
}

// RegisterInUse marks clip as held by a playing voice. Clips this service
// did not load are ignored.
func (s *Service) RegisterInUse(clip *audio.Clip) {
	if clip == nil {
		return
	}
	rec := s.byClip[clip]
	if rec == nil {
		return
	}
	rec.inUse++
	rec.candidateSince = notMarked
}

// UnregisterInUse undoes one [Service.RegisterInUse]. The count never goes
// below zero.
func (s *Service) UnregisterInUse(clip *audio.Clip) {
	if clip == nil {
		return
	}
	rec := s.byClip[clip]
	if rec == nil {
		return
	}
	rec.inUse = max(0, rec.inUse-1)
}

// IsEventReady reports whether every asset evt's selection mode needs is
// loaded. Weighted selection needs the positive-weight entries; the other
// modes need the plain clip list. An event with nothing to load is never
// ready.
func (s *Service) IsEventReady(evt *catalog.Descriptor) bool {
	if evt == nil {
		return false
	}
	if evt.UsesWeighted() {
		found := false
		for _, w := range evt.Weighted {
			if w.Key == "" || w.Weight <= 0 {
				continue
			}
			found = true
			if !s.isLoaded(w.Key) {
				return false
			}
		}
		return found
	}
	found := false
	for _, key := range evt.Clips {
		if key == "" {
			continue
		}
		found = true
		if !s.isLoaded(key) {
			return false
		}
	}
	return found
}

func (s *Service) isLoaded(key string) bool {
	rec := s.records[key]
	if rec == nil {
		return false
	}
	s.settle(rec)
	return rec.state == Loaded
}

// ResolveClips returns the loaded content for evt. plain is positional with
// evt.Clips and holds nil for entries that are not loaded. weighted only
// contains loaded entries with a positive weight.
func (s *Service) ResolveClips(evt *catalog.Descriptor) (plain []*audio.Clip, weighted []WeightedClip) {
	if evt == nil {
		return nil, nil
	}
	plain = make([]*audio.Clip, len(evt.Clips))
	for i, key := range evt.Clips {
		plain[i] = s.Clip(key)
	}
	for _, w := range evt.Weighted {
		if w.Weight <= 0 {
			continue
		}
		if c := s.Clip(w.Key); c != nil {
			weighted = append(weighted, WeightedClip{Clip: c, Weight: w.Weight})
		}
	}
	return plain, weighted
}

// Clip returns the loaded clip for key, or nil.
func (s *Service) Clip(key string) *audio.Clip {
	rec := s.records[key]
	if rec == nil {
		return nil
	}
	s.settle(rec)
	if rec.state != Loaded {
		return nil
	}
	return rec.clip
}

// State returns the load state of key.
func (s *Service) State(key string) State {
	rec := s.records[key]
	if rec == nil {
		return Unloaded
	}
	return rec.state
}

// RefCount returns the number of references held on key.
func (s *Service) RefCount(key string) int {
	if rec := s.records[key]; rec != nil {
		return rec.refs
	}
	return 0
}

// InUseCount returns the number of playing voices holding key.
func (s *Service) InUseCount(key string) int {
	if rec := s.records[key]; rec != nil {
		return rec.inUse
	}
	return 0
}

// Counters is a snapshot of the service's bookkeeping.
type Counters struct {
	Loaded  int
	Loading int
	Failed  int
	Scopes  int
}

// Counters returns the current counts.
func (s *Service) Counters() Counters {
	c := Counters{Scopes: len(s.scopes)}
	for _, rec := range s.records {
		switch rec.state {
		case Loaded:
			c.Loaded++
		case Loading:
			c.Loading++
		case Failed:
			c.Failed++
		}
	}
	return c
}
