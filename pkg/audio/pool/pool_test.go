package pool_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/mock"
	"github.com/MrWong99/soundcue/pkg/audio/pool"
)

func newPool(t *testing.T, s pool.Settings, opts ...pool.Option) (*pool.VoicePool, *mock.Output) {
	t.Helper()
	out := mock.NewOutput(&mock.Clock{})
	return pool.New("test", out, s, opts...), out
}

func TestSettings_Normalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   pool.Settings
		want pool.Settings
	}{
		{
			name: "negative initial",
			in:   pool.Settings{Initial: -3, Max: 4, Step: 1, AutoReleaseInterval: time.Second},
			want: pool.Settings{Initial: 0, Max: 4, Step: 1, AutoReleaseInterval: time.Second},
		},
		{
			name: "zero max",
			in:   pool.Settings{Initial: 2, Max: 0, Step: 1, AutoReleaseInterval: time.Second},
			want: pool.Settings{Initial: 1, Max: 1, Step: 1, AutoReleaseInterval: time.Second},
		},
		{
			name: "initial above max",
			in:   pool.Settings{Initial: 10, Max: 4, Step: 2, AutoReleaseInterval: time.Second},
			want: pool.Settings{Initial: 4, Max: 4, Step: 2, AutoReleaseInterval: time.Second},
		},
		{
			name: "zero step and interval",
			in:   pool.Settings{Initial: 1, Max: 4},
			want: pool.Settings{Initial: 1, Max: 4, Step: 1, AutoReleaseInterval: pool.DefaultAutoReleaseInterval},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNew_AllocatesInitial(t *testing.T) {
	t.Parallel()
	p, out := newPool(t, pool.DefaultSettings())
	if p.Total() != 16 || out.DeviceCount() != 16 {
		t.Errorf("Total() = %d devices = %d, want 16", p.Total(), out.DeviceCount())
	}
	if p.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", p.InUse())
	}
}

func TestTryAcquire_ExpandsByStep(t *testing.T) {
	t.Parallel()
	p, _ := newPool(t, pool.Settings{Initial: 1, Max: 4, Step: 2, Policy: audio.SkipIfFull})

	first := p.TryAcquire(128, 0)
	if first == nil || p.Total() != 1 {
		t.Fatalf("first acquire should use the initial voice")
	}
	second := p.TryAcquire(128, 0)
	if second == nil || p.Total() != 3 {
		t.Fatalf("Total() = %d, want 3 after expanding by step", p.Total())
	}
	p.TryAcquire(128, 0)
	p.TryAcquire(128, 0)
	if p.Total() != 4 {
		t.Errorf("Total() = %d, want capped at 4", p.Total())
	}
	if v := p.TryAcquire(128, 0); v != nil {
		t.Error("SkipIfFull pool should refuse when full")
	}
	if p.InUse() != 4 {
		t.Errorf("InUse() = %d, want 4", p.InUse())
	}
}

func TestTryAcquire_StealLowestPriority(t *testing.T) {
	t.Parallel()
	var released []int64
	p, _ := newPool(t,
		pool.Settings{Initial: 4, Max: 4, Step: 1, Policy: audio.StealLowestPriority},
		pool.WithReleaseCallback(func(v *pool.Voice) { released = append(released, v.Handle) }),
	)
	priorities := []int{10, 200, 50, 200}
	for i, pr := range priorities {
		v := p.TryAcquire(pr, time.Duration(i))
		v.Handle = int64(i + 1)
	}

	v := p.TryAcquire(0, 10)
	if v == nil {
		t.Fatal("steal should succeed")
	}
	if len(released) != 1 || released[0] != 2 {
		t.Fatalf("released = %v, want first voice with the highest value (handle 2)", released)
	}
	if v.Priority != 0 || v.Handle != pool.NoHandle {
		t.Errorf("stolen voice should be reset and re-owned: priority=%d handle=%d", v.Priority, v.Handle)
	}
	v.Handle = 5

	p.TryAcquire(0, 11)
	if len(released) != 2 || released[1] != 4 {
		t.Errorf("released = %v, want handle 4 next", released)
	}
}

func TestTryAcquire_StealLowestPriority_TieTakesFirstSlot(t *testing.T) {
	t.Parallel()
	var released []int64
	p, _ := newPool(t,
		pool.Settings{Initial: 2, Max: 2, Step: 1, Policy: audio.StealLowestPriority},
		pool.WithReleaseCallback(func(v *pool.Voice) { released = append(released, v.Handle) }),
	)
	first := p.TryAcquire(100, 0)
	first.Handle = 1
	p.TryAcquire(100, 1).Handle = 2

	// Slot 0 is reused by a newer voice, so slot order and age disagree.
	p.Release(first)
	p.TryAcquire(100, 5).Handle = 3
	released = nil

	p.TryAcquire(0, 6)
	if len(released) != 1 || released[0] != 3 {
		t.Errorf("released = %v, want the voice in the first slot (handle 3)", released)
	}
}

func TestTryAcquire_StealOldest(t *testing.T) {
	t.Parallel()
	var released []int64
	p, _ := newPool(t,
		pool.Settings{Initial: 3, Max: 3, Step: 1, Policy: audio.StealOldest},
		pool.WithReleaseCallback(func(v *pool.Voice) { released = append(released, v.Handle) }),
	)
	starts := []time.Duration{30, 10, 20}
	for i, s := range starts {
		v := p.TryAcquire(0, s)
		v.Handle = int64(i + 1)
	}
	p.TryAcquire(255, 40)
	if len(released) != 1 || released[0] != 2 {
		t.Errorf("released = %v, want oldest (handle 2)", released)
	}
}

func TestPoolBound_RandomSequence(t *testing.T) {
	t.Parallel()
	policies := []audio.StealPolicy{audio.StealLowestPriority, audio.StealOldest, audio.SkipIfFull}
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			t.Parallel()
			p, _ := newPool(t, pool.Settings{Initial: 2, Max: 8, Step: 3, Policy: policy})
			rng := rand.New(rand.NewPCG(1, 2))
			var held []*pool.Voice
			for i := range 500 {
				if rng.IntN(3) > 0 {
					if v := p.TryAcquire(rng.IntN(257), time.Duration(i)); v != nil {
						held = append(held, v)
					}
				} else if len(held) > 0 {
					j := rng.IntN(len(held))
					p.Release(held[j])
					held = append(held[:j], held[j+1:]...)
				}
				if p.InUse() > p.Total() || p.Total() > 8 {
					t.Fatalf("step %d: inUse=%d total=%d max=8", i, p.InUse(), p.Total())
				}
			}
		})
	}
}

func TestRelease_CallbackSeesMetadata(t *testing.T) {
	t.Parallel()
	var gotHandle int64
	var gotBus audio.Bus
	p, _ := newPool(t, pool.Settings{Initial: 1, Max: 1},
		pool.WithReleaseCallback(func(v *pool.Voice) {
			gotHandle = v.Handle
			gotBus = v.Bus
			if v.InUse() {
				t.Error("voice should already be free inside the callback")
			}
		}),
	)
	v := p.TryAcquire(100, 0)
	v.Handle = 42
	v.Bus = audio.BusAmbience
	dev := v.Device.(*mock.Device)
	dev.SetVolume(0.3)
	dev.SetPitch(2)
	dev.SetLoop(true)
	dev.Play()

	p.Release(v)
	p.Release(v)

	if gotHandle != 42 || gotBus != audio.BusAmbience {
		t.Errorf("callback saw handle=%d bus=%v", gotHandle, gotBus)
	}
	if v.Handle != pool.NoHandle || v.Bus != audio.BusSfx || v.Event != nil {
		t.Errorf("metadata not cleared after callback: %+v", v)
	}
	if dev.IsPlaying() || dev.Volume() != 1 || dev.Pitch() != 1 || dev.Loop() {
		t.Error("device should be stopped and reset")
	}
	if dev.CallCountStop != 1 {
		t.Errorf("Stop called %d times, want 1 (release is idempotent)", dev.CallCountStop)
	}
	p.Release(nil)
}

func TestTick_AutoRelease(t *testing.T) {
	t.Parallel()
	p, _ := newPool(t, pool.Settings{Initial: 3, Max: 3, AutoReleaseInterval: 100 * time.Millisecond})

	timed := p.TryAcquire(128, 0)
	timed.End = time.Second
	timed.Device.Play()

	looping := p.TryAcquire(128, 0)
	looping.Looping = true

	stopped := p.TryAcquire(128, 0)
	stopped.End = time.Hour

	p.Tick(2*time.Second, 50*time.Millisecond)
	if p.InUse() != 3 {
		t.Fatalf("Tick below the interval must not release, InUse() = %d", p.InUse())
	}

	p.Tick(2*time.Second, 50*time.Millisecond)
	if timed.InUse() {
		t.Error("voice past its end time should be released")
	}
	if stopped.InUse() {
		t.Error("voice whose device is not playing should be released")
	}
	if !looping.InUse() {
		t.Error("looping voice must not be auto-released")
	}
}

func TestTick_FollowTarget(t *testing.T) {
	t.Parallel()
	p, _ := newPool(t, pool.Settings{Initial: 1, Max: 1, AutoReleaseInterval: time.Millisecond})
	v := p.TryAcquire(128, 0)
	v.Looping = true
	target := &mock.Target{Pos: audio.Vec3{X: 1}}
	v.Follow = target

	target.Move(audio.Vec3{X: 3, Y: 4})
	p.Tick(0, time.Millisecond)
	if got := v.Device.Position(); got != (audio.Vec3{X: 3, Y: 4}) {
		t.Errorf("Position() = %+v, want follow target", got)
	}
}

func TestPause_SkipsAutoReleaseAndExtendsEnd(t *testing.T) {
	t.Parallel()
	p, _ := newPool(t, pool.Settings{Initial: 1, Max: 1, AutoReleaseInterval: time.Millisecond})
	v := p.TryAcquire(128, 0)
	v.End = time.Second
	v.Device.Play()

	p.Pause(v, 500*time.Millisecond)
	p.Tick(5*time.Second, time.Millisecond)
	if !v.InUse() {
		t.Fatal("paused voice must not be auto-released")
	}

	p.Resume(v, 5*time.Second)
	if v.End != 5500*time.Millisecond {
		t.Errorf("End = %v, want 5.5s", v.End)
	}
	p.Tick(5*time.Second, time.Millisecond)
	if !v.InUse() {
		t.Error("resumed voice should keep playing until its shifted end")
	}
}

func TestByHandle(t *testing.T) {
	t.Parallel()
	p, _ := newPool(t, pool.Settings{Initial: 2, Max: 2})
	v := p.TryAcquire(128, 0)
	v.Handle = 7
	if got, ok := p.ByHandle(7); !ok || got != v {
		t.Error("ByHandle should find the voice")
	}
	p.Release(v)
	if _, ok := p.ByHandle(7); ok {
		t.Error("released voice must not be found")
	}
}
