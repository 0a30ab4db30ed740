package content_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
	"github.com/MrWong99/soundcue/pkg/audio/content"
	"github.com/MrWong99/soundcue/pkg/audio/mock"
)

func newService(t *testing.T) (*content.Service, *mock.Loader) {
	t.Helper()
	l := mock.NewLoader()
	l.SetClip("a", time.Second)
	l.SetClip("b", time.Second)
	l.SetClip("c", time.Second)
	return content.New(l), l
}

func events(ds ...*catalog.Descriptor) []*catalog.Descriptor { return ds }

func TestPreload_DeduplicatesWithinCall(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e1 := catalog.NewDescriptor("e1", audio.BusSfx, "a", "b")
	e2 := catalog.NewDescriptor("e2", audio.BusSfx, "b", "a")

	h := svc.Preload(events(e1, e2), true, "")
	if h.Len() != 2 {
		t.Fatalf("handle aggregates %d ops, want 2", h.Len())
	}
	if l.LoadCount("a") != 1 || l.LoadCount("b") != 1 {
		t.Errorf("load calls = %v, want one per key", l.LoadCalls)
	}
	if svc.RefCount("a") != 1 {
		t.Errorf("RefCount(a) = %d, want 1", svc.RefCount("a"))
	}
	if h.IsDone() || h.Status() != audio.LoadLoading {
		t.Errorf("handle should still be loading")
	}

	l.CompleteAll()
	if !h.IsDone() || h.Status() != audio.LoadSucceeded || h.Progress() != 1 {
		t.Errorf("handle after completion: done=%v status=%v progress=%v", h.IsDone(), h.Status(), h.Progress())
	}
	if !svc.IsEventReady(e1) {
		t.Error("e1 should be ready")
	}
}

func TestPreload_LoadedAssetsNotReloaded(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a")

	svc.Preload(events(e), false, "")
	l.CompleteAll()
	svc.Tick(0, time.Hour)

	h := svc.Preload(events(e), false, "")
	if h.Len() != 0 || !h.IsDone() {
		t.Errorf("already-loaded preload should complete immediately")
	}
	if l.LoadCount("a") != 1 {
		t.Errorf("LoadCount(a) = %d, want 1", l.LoadCount("a"))
	}
}

func TestPreload_JoinsInFlightLoad(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a")

	h1 := svc.Preload(events(e), false, "")
	h2 := svc.Preload(events(e), false, "")
	if l.LoadCount("a") != 1 {
		t.Fatalf("in-flight load should be joined, got %d loads", l.LoadCount("a"))
	}
	if h1.Len() != 1 || h2.Len() != 1 {
		t.Errorf("both handles should aggregate the in-flight op")
	}
}

func TestScope_ReleaseThenGraceEvicts(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	shared := catalog.NewDescriptor("shared", audio.BusSfx, "a")
	exclusive := catalog.NewDescriptor("exclusive", audio.BusSfx, "b")
	const grace = 2 * time.Second

	svc.AcquireScope("global", events(shared))
	svc.AcquireScope("level", events(shared, exclusive))
	l.CompleteAll()
	svc.Tick(0, grace)

	if got := svc.Counters().Scopes; got != 2 {
		t.Fatalf("Scopes = %d, want 2", got)
	}
	if svc.RefCount("a") != 2 || svc.RefCount("b") != 1 {
		t.Fatalf("refs a=%d b=%d, want 2 and 1", svc.RefCount("a"), svc.RefCount("b"))
	}

	svc.ReleaseScope("level")
	svc.Tick(time.Second, grace)
	if svc.State("b") != content.Loaded {
		t.Fatalf("b evicted before grace elapsed")
	}
	svc.Tick(2*time.Second, grace)
	if svc.State("b") != content.Loaded {
		t.Fatalf("b evicted before grace elapsed")
	}
	svc.Tick(3*time.Second, grace)
	if svc.State("b") != content.Unloaded {
		t.Errorf("State(b) = %v, want unloaded", svc.State("b"))
	}
	if svc.State("a") != content.Loaded {
		t.Errorf("State(a) = %v, shared asset must stay loaded", svc.State("a"))
	}
	if !l.Ops[1].Released() {
		t.Error("evicted op should be released")
	}
}

func TestScope_ReacquireReplaces(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	ea := catalog.NewDescriptor("ea", audio.BusSfx, "a")
	eb := catalog.NewDescriptor("eb", audio.BusSfx, "b")

	svc.AcquireScope("panel", events(ea))
	svc.AcquireScope("panel", events(eb))
	l.CompleteAll()

	if svc.RefCount("a") != 0 {
		t.Errorf("RefCount(a) = %d, want 0 after replace", svc.RefCount("a"))
	}
	if svc.RefCount("b") != 1 {
		t.Errorf("RefCount(b) = %d, want 1", svc.RefCount("b"))
	}
	if svc.Counters().Scopes != 1 {
		t.Errorf("Scopes = %d, want 1", svc.Counters().Scopes)
	}
}

func TestScope_ReacquireSameAssetsKeepsSingleRef(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a", "a")

	svc.AcquireScope("s", events(e, e))
	svc.AcquireScope("s", events(e))
	if svc.RefCount("a") != 1 {
		t.Errorf("RefCount(a) = %d, want 1", svc.RefCount("a"))
	}
}

func TestAcquireScope_EmptyID(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	h := svc.AcquireScope("  ", events(catalog.NewDescriptor("e", audio.BusSfx, "a")))
	if h.Status() != audio.LoadFailed || !errors.Is(h.Err(), content.ErrLoadFailed) {
		t.Errorf("status=%v err=%v, want failed handle", h.Status(), h.Err())
	}
}

func TestInUse_BlocksEvictionAndClamps(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a")

	svc.Preload(events(e), false, "")
	l.CompleteAll()
	clip := svc.Clip("a")
	if clip == nil {
		t.Fatal("clip a should be loaded")
	}

	svc.RegisterInUse(clip)
	svc.Tick(0, 0)
	svc.Tick(time.Minute, 0)
	svc.UnloadUnusedNow()
	svc.RequestUnload(events(e), true)
	if svc.State("a") != content.Loaded {
		t.Fatal("in-use asset must not be evicted")
	}

	svc.UnregisterInUse(clip)
	svc.UnregisterInUse(clip)
	if svc.InUseCount("a") != 0 {
		t.Errorf("InUseCount = %d, want clamped 0", svc.InUseCount("a"))
	}

	svc.Tick(2*time.Minute, 0)
	svc.Tick(2*time.Minute, 0)
	if svc.State("a") != content.Unloaded {
		t.Errorf("State(a) = %v, want unloaded with zero grace", svc.State("a"))
	}
}

func TestTick_ZeroGraceEvictsOnNextTick(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a")

	svc.Preload(events(e), false, "")
	l.CompleteAll()

	svc.Tick(time.Second, 0)
	if svc.State("a") != content.Loaded {
		t.Fatalf("State(a) = %v, the marking tick must not evict", svc.State("a"))
	}
	svc.Tick(time.Second, 0)
	if svc.State("a") != content.Unloaded {
		t.Errorf("State(a) = %v, want unloaded on the following tick", svc.State("a"))
	}
}

func TestRegisterInUse_UnknownClipIgnored(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	stray := &audio.Clip{Key: "stray"}
	svc.RegisterInUse(stray)
	svc.UnregisterInUse(stray)
	svc.RegisterInUse(nil)
	if svc.InUseCount("stray") != 0 {
		t.Error("unknown clip should not create a record")
	}
}

func TestReferenceResetsEligibility(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a")
	const grace = 5 * time.Second

	svc.Preload(events(e), false, "")
	l.CompleteAll()
	svc.Tick(0, grace)
	svc.Tick(4*time.Second, grace)

	svc.AcquireScope("s", events(e))
	svc.ReleaseScope("s")
	svc.Tick(6*time.Second, grace)
	if svc.State("a") != content.Loaded {
		t.Fatal("re-reference should restart the grace period")
	}
	svc.Tick(11*time.Second, grace)
	if svc.State("a") != content.Unloaded {
		t.Errorf("State(a) = %v, want unloaded", svc.State("a"))
	}
}

func TestFailedLoad_RetriedOnNextReference(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a")

	h := svc.Preload(events(e), true, "")
	l.Fail("a")
	svc.Tick(0, time.Second)

	if svc.Counters().Failed != 1 {
		t.Fatalf("Failed = %d, want 1", svc.Counters().Failed)
	}
	if h.Status() != audio.LoadFailed || !errors.Is(h.Err(), mock.ErrMockLoad) {
		t.Errorf("handle status=%v err=%v", h.Status(), h.Err())
	}
	if svc.IsEventReady(e) {
		t.Error("failed event must not be ready")
	}
	if got := svc.State("a"); got != content.Failed || got.String() != "failed" {
		t.Errorf("State(a) = %v, want failed", got)
	}

	svc.Preload(events(e), false, "")
	if l.LoadCount("a") != 2 {
		t.Fatalf("LoadCount(a) = %d, want retry", l.LoadCount("a"))
	}
	if !l.Ops[0].Released() {
		t.Error("stale failed op should be released before retry")
	}
	l.Complete("a")
	if !svc.IsEventReady(e) {
		t.Error("event should be ready after successful retry")
	}
	if c := svc.Counters(); c.Failed != 0 || c.Loaded != 1 {
		t.Errorf("counters = %+v", c)
	}
}

func TestRequestUnload_NonImmediate(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a")

	svc.Preload(events(e), false, "")
	l.CompleteAll()
	svc.Tick(0, time.Hour)

	svc.RequestUnload(events(e), false)
	svc.Tick(30*time.Minute, time.Hour)
	if svc.State("a") != content.Loaded {
		t.Fatal("non-immediate unload must wait for the grace period")
	}
	svc.Tick(time.Hour, time.Hour)
	if svc.State("a") != content.Unloaded {
		t.Errorf("State(a) = %v, want unloaded", svc.State("a"))
	}
}

func TestIsEventReady_Modes(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)

	weighted := catalog.NewDescriptor("w", audio.BusSfx, "c")
	weighted.Selection = audio.SelectWeightedRandom
	weighted.Weighted = []catalog.WeightedClip{{Key: "a", Weight: 1}, {Key: "b", Weight: 0}}

	svc.Preload(events(weighted), false, "")
	l.Complete("a")

	if !svc.IsEventReady(weighted) {
		t.Error("weighted event needs only positive-weight entries")
	}
	plain, ws := svc.ResolveClips(weighted)
	if len(ws) != 1 || ws[0].Clip.Key != "a" {
		t.Errorf("weighted resolve = %+v", ws)
	}
	if len(plain) != 1 || plain[0] != nil {
		t.Errorf("plain resolve = %v, want [nil]", plain)
	}

	empty := catalog.NewDescriptor("empty", audio.BusSfx)
	if svc.IsEventReady(empty) {
		t.Error("event without clips is never ready")
	}
	if svc.IsEventReady(nil) {
		t.Error("nil event is never ready")
	}
}

func TestReload(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a")

	svc.AcquireScope("s", events(e))
	l.CompleteAll()
	if !svc.IsEventReady(e) {
		t.Fatal("event should be ready")
	}
	if !svc.Reload("a") {
		t.Fatal("Reload should reset an idle asset")
	}
	if svc.State("a") != content.Loading || l.LoadCount("a") != 2 {
		t.Errorf("referenced asset should reload: state=%v loads=%d", svc.State("a"), l.LoadCount("a"))
	}
	if svc.Reload("missing") {
		t.Error("unknown key should not reload")
	}
}

func TestForceUnloadAll(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a", "b")

	svc.AcquireScope("s", events(e))
	l.CompleteAll()
	svc.RegisterInUse(svc.Clip("a"))

	svc.ForceUnloadAll()
	c := svc.Counters()
	if c.Loaded != 0 || c.Scopes != 0 {
		t.Errorf("counters after force unload = %+v", c)
	}
	if svc.InUseCount("a") != 0 || svc.RefCount("b") != 0 {
		t.Error("holders should be cleared")
	}
}

func TestLoadHandle_Progress(t *testing.T) {
	t.Parallel()
	svc, l := newService(t)
	e := catalog.NewDescriptor("e", audio.BusSfx, "a", "b")

	h := svc.Preload(events(e), false, "")
	l.Ops[0].SetProgress(0.5)
	if got := h.Progress(); got != 0.25 {
		t.Errorf("Progress() = %v, want 0.25", got)
	}
	l.Complete("b")
	if got := h.Progress(); got != 0.75 {
		t.Errorf("Progress() = %v, want 0.75", got)
	}
	if content.Completed().Progress() != 1 {
		t.Error("completed handle progress should be 1")
	}
}

func TestLoadHandle_Settled(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		h       *content.LoadHandle
		status  audio.LoadStatus
		wantErr bool
	}{
		{"completed", content.Completed(), audio.LoadSucceeded, false},
		{"failed", content.FailedHandle("no scope"), audio.LoadFailed, true},
		{"nil", nil, audio.LoadSucceeded, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.h.IsDone() {
				t.Error("handle should be done")
			}
			if got := tc.h.Status(); got != tc.status {
				t.Errorf("Status() = %v, want %v", got, tc.status)
			}
			if err := tc.h.Err(); errors.Is(err, content.ErrLoadFailed) != tc.wantErr {
				t.Errorf("Err() = %v, want failure %v", err, tc.wantErr)
			}
		})
	}
}
