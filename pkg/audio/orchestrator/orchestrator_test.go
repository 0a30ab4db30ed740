package orchestrator

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
	"github.com/MrWong99/soundcue/pkg/audio/content"
	"github.com/MrWong99/soundcue/pkg/audio/mock"
	"github.com/MrWong99/soundcue/pkg/audio/pool"
)

type fixture struct {
	o      *Orchestrator
	clock  *mock.Clock
	out    *mock.Output
	loader *mock.Loader
	mixer  *mock.Mixer
	store  *mock.Store
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OutputGroups = map[audio.Bus]string{
		audio.BusUI:    "UI",
		audio.BusSfx:   "SFX",
		audio.BusMusic: "Music",
	}
	cfg.ExposedParams = map[audio.Bus]string{
		audio.BusMaster: "MasterVolume",
		audio.BusMusic:  "MusicVolume",
		audio.BusSfx:    "SfxVolume",
		audio.BusUI:     "UiVolume",
	}
	cfg.Snapshots = map[string]int{"default": 0, "ambient": 5, "alert": 10}
	small := pool.Settings{Initial: 4, Max: 8, Step: 2, Policy: audio.StealLowestPriority, AutoReleaseInterval: 100 * time.Millisecond}
	cfg.Pool2D = small
	cfg.Pool3D = small
	return cfg
}

func newFixture(t *testing.T, cfg Config, events []*catalog.Descriptor, banks ...catalog.Bank) *fixture {
	t.Helper()
	f := &fixture{
		clock:  &mock.Clock{},
		loader: mock.NewLoader(),
		mixer:  &mock.Mixer{},
		store:  &mock.Store{},
	}
	f.out = mock.NewOutput(f.clock)
	f.loader.AutoComplete = true
	for _, e := range events {
		for _, k := range e.Keys() {
			f.loader.SetClip(k, time.Second)
		}
	}
	f.o = New(cfg, catalog.New(events, banks...), f.out, f.loader,
		WithClock(f.clock),
		WithMixer(f.mixer),
		WithStore(f.store),
	)
	f.o.Init()
	return f
}

// step advances both clocks by d and runs one tick.
func (f *fixture) step(d time.Duration) {
	f.clock.Advance(d)
	f.o.Tick(d)
}

func (f *fixture) device(t *testing.T, h Handle) *mock.Device {
	t.Helper()
	av, ok := f.o.voices[h.ID()]
	if !ok {
		t.Fatalf("handle %d is not registered", h.ID())
	}
	return av.device.(*mock.Device)
}

func (f *fixture) ready(t *testing.T, ids ...string) {
	t.Helper()
	h := f.o.PreloadByIDs(ids)
	if !h.IsDone() || h.Status() != audio.LoadSucceeded {
		t.Fatalf("preload of %v: done=%v status=%v err=%v", ids, h.IsDone(), h.Status(), h.Err())
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestPlayUI_ClickLifecycle(t *testing.T) {
	t.Parallel()
	click := catalog.NewDescriptor("ui.click", audio.BusUI, "click")
	click.Volume = 0.8
	f := newFixture(t, testConfig(), []*catalog.Descriptor{click})
	f.loader.SetClip("click", 50*time.Millisecond)
	f.ready(t, "ui.click")

	h := f.o.Play("ui.click")
	if !h.IsValid() {
		t.Fatal("play should succeed once content is ready")
	}
	dev := f.device(t, h)
	if dev.Output() != "UI" {
		t.Errorf("Output() = %q, want UI", dev.Output())
	}
	if dev.Spatial().Blend != 0 || dev.Position() != (audio.Vec3{}) {
		t.Errorf("UI sound must be 2D at the origin, got %+v", dev.Spatial())
	}
	if !approx(dev.Volume(), 0.8) || !approx(dev.Pitch(), 1) {
		t.Errorf("volume=%v pitch=%v, want 0.8 and 1", dev.Volume(), dev.Pitch())
	}
	if !dev.IsPlaying() || dev.Clip().Key != "click" {
		t.Error("device should be playing the click clip")
	}
	if f.o.ActiveInstances("ui.click") != 1 || f.o.Content().InUseCount("click") != 1 {
		t.Error("instance and in-use counts should be 1")
	}

	f.step(100 * time.Millisecond)
	if h.IsValid() {
		t.Fatal("handle should expire once the clip has finished")
	}
	if f.o.ActiveInstances("ui.click") != 0 || f.o.Content().InUseCount("click") != 0 {
		t.Error("counts should return to zero after expiry")
	}
	if f.o.pool2D.InUse() != 0 {
		t.Errorf("pool2D.InUse() = %d, want 0", f.o.pool2D.InUse())
	}
}

func TestPlay_NotReadyStartsPreload(t *testing.T) {
	t.Parallel()
	hit := catalog.NewDescriptor("sfx.hit", audio.BusSfx, "hit")
	f := newFixture(t, testConfig(), []*catalog.Descriptor{hit})
	f.loader.AutoComplete = false

	if h := f.o.Play("sfx.hit"); h.IsValid() {
		t.Fatal("play must fail fast while content is not loaded")
	}
	if f.loader.LoadCount("hit") != 1 {
		t.Fatalf("LoadCount(hit) = %d, want 1", f.loader.LoadCount("hit"))
	}
	if h := f.o.Play("sfx.hit"); h.IsValid() {
		t.Fatal("still loading")
	}
	if f.loader.LoadCount("hit") != 1 {
		t.Errorf("in-flight load should be reused, LoadCount = %d", f.loader.LoadCount("hit"))
	}

	f.loader.Complete("hit")
	if h := f.o.Play("sfx.hit"); !h.IsValid() {
		t.Error("play should succeed after the load completes")
	}
}

func TestPlay_UnknownEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), nil)
	if h := f.o.Play("nope"); h.IsValid() {
		t.Error("unknown event must yield an invalid handle")
	}
	if h := f.o.PlaySFX(nil); h.IsValid() {
		t.Error("nil event must yield an invalid handle")
	}
}

func TestPlay_Cooldown(t *testing.T) {
	t.Parallel()
	shot := catalog.NewDescriptor("sfx.shot", audio.BusSfx, "shot")
	shot.Cooldown = time.Second
	f := newFixture(t, testConfig(), []*catalog.Descriptor{shot})
	f.ready(t, "sfx.shot")

	if !f.o.Play("sfx.shot").IsValid() {
		t.Fatal("first play should succeed")
	}
	if f.o.Play("sfx.shot").IsValid() {
		t.Fatal("second play inside the cooldown must be rejected")
	}
	f.clock.Advance(999 * time.Millisecond)
	if f.o.Play("sfx.shot").IsValid() {
		t.Fatal("still inside the cooldown")
	}
	f.clock.Advance(time.Millisecond)
	if !f.o.Play("sfx.shot").IsValid() {
		t.Error("play after the cooldown should succeed")
	}
}

func TestPlay_UICooldownUsesFrameTime(t *testing.T) {
	t.Parallel()
	tap := catalog.NewDescriptor("ui.tap", audio.BusUI, "tap")
	tap.Cooldown = time.Second
	f := newFixture(t, testConfig(), []*catalog.Descriptor{tap})
	f.ready(t, "ui.tap")

	f.o.Play("ui.tap")
	f.clock.Advance(5 * time.Second)
	if f.o.Play("ui.tap").IsValid() {
		t.Fatal("UI cooldown must follow frame time, not the wall clock")
	}
	f.o.Tick(time.Second)
	if !f.o.Play("ui.tap").IsValid() {
		t.Error("UI cooldown should elapse after one second of frames")
	}
}

func TestPlay_MaxInstances(t *testing.T) {
	t.Parallel()
	loop := catalog.NewDescriptor("amb.wind", audio.BusAmbience, "wind")
	loop.Loop = true
	loop.MaxInstances = 3
	f := newFixture(t, testConfig(), []*catalog.Descriptor{loop})
	f.ready(t, "amb.wind")

	valid := 0
	for range loop.MaxInstances + 1 {
		if f.o.Play("amb.wind").IsValid() {
			valid++
		}
	}
	if valid != 3 || f.o.ActiveInstances("amb.wind") != 3 {
		t.Errorf("valid=%d active=%d, want 3", valid, f.o.ActiveInstances("amb.wind"))
	}
}

func TestPlay_NoOverlap(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("ui.open", audio.BusUI, "open")
	f := newFixture(t, testConfig(), []*catalog.Descriptor{e})
	f.ready(t, "ui.open")

	if !f.o.PlayUI(e, AllowOverlap(false)).IsValid() {
		t.Fatal("first play should succeed")
	}
	if f.o.PlayUI(e, AllowOverlap(false)).IsValid() {
		t.Error("overlap must be refused while an instance is active")
	}
	if !f.o.PlayUI(e).IsValid() {
		t.Error("overlap is allowed by default")
	}
}

func TestPlay_SequenceSelection(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("sfx.step", audio.BusSfx, "s1", "s2", "s3")
	e.Selection = audio.SelectSequence
	f := newFixture(t, testConfig(), []*catalog.Descriptor{e})
	f.ready(t, "sfx.step")

	var got []string
	for range 4 {
		h := f.o.Play("sfx.step")
		got = append(got, f.device(t, h).Clip().Key)
	}
	want := []string{"s1", "s2", "s3", "s1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", got, want)
		}
	}
}

func TestPlay_SequenceSkipsUnloaded(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("sfx.step", audio.BusSfx, "s1", "s2")
	e.Selection = audio.SelectSequence
	f := newFixture(t, testConfig(), nil)
	f.loader.AutoComplete = false
	f.loader.SetClip("s1", time.Second)
	f.o.content.Preload([]*catalog.Descriptor{e}, true, "")
	f.loader.Complete("s1")

	plain, _ := f.o.content.ResolveClips(e)
	if plain[0] == nil || plain[1] != nil {
		t.Fatalf("resolve = %v, want only s1 loaded", plain)
	}
	st := f.o.state(e)
	st.sequence = 1
	clip, next, ok := f.o.pickClip(e, st)
	if !ok || clip.Key != "s1" || next != 1 {
		t.Errorf("pickClip = %v/%d/%v, want s1 with next index 1", clip, next, ok)
	}
}

func TestPlay_WeightedSelection(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("sfx.coin", audio.BusSfx)
	e.Selection = audio.SelectWeightedRandom
	e.Weighted = []catalog.WeightedClip{{Key: "rare", Weight: 0}, {Key: "common", Weight: 5}}
	f := newFixture(t, testConfig(), []*catalog.Descriptor{e})
	f.ready(t, "sfx.coin")

	for range 2 * e.MaxInstances {
		h := f.o.Play("sfx.coin")
		if key := f.device(t, h).Clip().Key; key != "common" {
			t.Fatalf("picked %q, zero-weight entries must never be chosen", key)
		}
		f.o.Stop(h, 0)
	}
}

func TestPlay_Spatial(t *testing.T) {
	t.Parallel()
	boom := catalog.NewDescriptor("sfx.boom", audio.BusSfx, "boom")
	forced := catalog.NewDescriptor("ui.beep", audio.BusUI, "beep")
	forced.Spatial = audio.Spatial3D
	flat := catalog.NewDescriptor("sfx.flat", audio.BusSfx, "flat")
	flat.Spatial = audio.Spatial2D
	f := newFixture(t, testConfig(), []*catalog.Descriptor{boom, forced, flat})
	f.ready(t, "sfx.boom", "ui.beep", "sfx.flat")

	pos := audio.Vec3{X: 1, Y: 2, Z: 3}
	h := f.o.PlaySFX(boom, At(pos))
	dev := f.device(t, h)
	if dev.Spatial().Blend != 1 || dev.Position() != pos {
		t.Errorf("positioned sfx: blend=%v pos=%+v", dev.Spatial().Blend, dev.Position())
	}
	if f.o.voices[h.ID()].pool != f.o.pool3D {
		t.Error("3D sound should come from the 3D pool")
	}

	target := &mock.Target{Pos: audio.Vec3{X: 9}}
	h = f.o.PlaySFX(boom, Following(target))
	if got := f.device(t, h).Position(); got != target.Pos {
		t.Errorf("follow position = %+v, want %+v", got, target.Pos)
	}

	h = f.o.PlayUI(forced, At(pos))
	if f.device(t, h).Spatial().Blend != 0 {
		t.Error("PlayUI forces 2D")
	}

	h = f.o.PlaySFX(flat, At(pos))
	if d := f.device(t, h); d.Spatial().Blend != 0 || d.Position() != (audio.Vec3{}) {
		t.Error("2D events ignore positions")
	}

	h = f.o.PlaySFX(boom)
	if f.device(t, h).Spatial().Blend != 0 {
		t.Error("auto spatial without position is 2D")
	}
}

func TestPlay_VolumeAndPitchMultipliers(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("sfx.x", audio.BusSfx, "x")
	e.Volume = 0.5
	e.PitchMin, e.PitchMax = 1.5, 1.5
	f := newFixture(t, testConfig(), []*catalog.Descriptor{e})
	f.ready(t, "sfx.x")

	h := f.o.PlaySFX(e, WithVolume(3), WithPitch(2))
	dev := f.device(t, h)
	if !approx(dev.Volume(), 0.5) {
		t.Errorf("Volume() = %v, multiplier clamps to 1", dev.Volume())
	}
	if !approx(dev.Pitch(), 3) {
		t.Errorf("Pitch() = %v, want 3", dev.Pitch())
	}
	v := f.o.voices[h.ID()].voice
	if want := time.Second / 3; v.End-v.Start != want {
		t.Errorf("duration = %v, want %v", v.End-v.Start, want)
	}
}

func TestPlay_DisabledCategory(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("sfx.x", audio.BusSfx, "x")
	f := newFixture(t, testConfig(), []*catalog.Descriptor{e})
	f.ready(t, "sfx.x")

	f.o.SetSoundEnabled(false)
	if f.o.Play("sfx.x").IsValid() {
		t.Error("disabled sound must reject plays")
	}
	if f.o.PlaySFXClip(&audio.Clip{Key: "raw", Length: time.Second}).IsValid() {
		t.Error("disabled sound must reject direct clips")
	}
}

func TestPlay_PoolFullSkip(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Pool2D = pool.Settings{Initial: 1, Max: 1, Policy: audio.SkipIfFull}
	e := catalog.NewDescriptor("sfx.x", audio.BusSfx, "x")
	f := newFixture(t, cfg, []*catalog.Descriptor{e})
	f.ready(t, "sfx.x")

	if !f.o.Play("sfx.x").IsValid() {
		t.Fatal("first play should succeed")
	}
	if f.o.Play("sfx.x").IsValid() {
		t.Error("a full SkipIfFull pool must reject")
	}
	if f.o.ActiveInstances("sfx.x") != 1 {
		t.Errorf("ActiveInstances = %d, want 1", f.o.ActiveInstances("sfx.x"))
	}
}

func TestPlay_StealInvalidatesVictim(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Pool2D = pool.Settings{Initial: 1, Max: 1, Policy: audio.StealLowestPriority}
	minor := catalog.NewDescriptor("sfx.minor", audio.BusSfx, "minor")
	minor.Priority = 200
	major := catalog.NewDescriptor("sfx.major", audio.BusSfx, "major")
	major.Priority = 10
	f := newFixture(t, cfg, []*catalog.Descriptor{minor, major})
	f.ready(t, "sfx.minor", "sfx.major")

	victim := f.o.Play("sfx.minor")
	winner := f.o.Play("sfx.major")
	if victim.IsValid() || !winner.IsValid() {
		t.Fatalf("victim valid=%v winner valid=%v", victim.IsValid(), winner.IsValid())
	}
	if f.o.ActiveInstances("sfx.minor") != 0 || f.o.Content().InUseCount("minor") != 0 {
		t.Error("stolen voice must be fully unregistered")
	}
	if f.device(t, winner).Clip().Key != "major" {
		t.Error("reused device should play the new clip")
	}
}

func TestStop_InvalidatesHandle(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("sfx.x", audio.BusSfx, "x")
	e.Loop = true
	f := newFixture(t, testConfig(), []*catalog.Descriptor{e})
	f.ready(t, "sfx.x")

	h := f.o.Play("sfx.x")
	dev := f.device(t, h)
	h.Stop(0)
	if h.IsValid() || dev.IsPlaying() {
		t.Fatal("Stop(0) must stop immediately and invalidate the handle")
	}

	h.SetVolume(0.1)
	h.SetPitch(3)
	h.SetFollowTarget(&mock.Target{})
	h.Stop(time.Second)
	if h.IsPlaying() || f.o.FadeCount() != 0 {
		t.Error("operations on a stale handle must be no-ops")
	}

	next := f.o.Play("sfx.x")
	if next.ID() <= h.ID() {
		t.Errorf("handle ids must increase: %d after %d", next.ID(), h.ID())
	}
	if h.IsValid() {
		t.Error("stale handle must stay invalid after the voice is reused")
	}
	if InvalidHandle.IsValid() {
		t.Error("zero handle is invalid")
	}
}

func TestStop_FadeOut(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("sfx.x", audio.BusSfx, "x")
	e.Loop = true
	f := newFixture(t, testConfig(), []*catalog.Descriptor{e})
	f.ready(t, "sfx.x")

	h := f.o.Play("sfx.x")
	dev := f.device(t, h)
	f.o.Stop(h, time.Second)
	f.step(500 * time.Millisecond)
	if !h.IsValid() || !approx(dev.Volume(), 0.5) {
		t.Fatalf("mid-fade: valid=%v volume=%v", h.IsValid(), dev.Volume())
	}
	f.o.Stop(h, time.Second)
	if f.o.FadeCount() != 1 {
		t.Fatalf("FadeCount() = %d, a new fade replaces the old one", f.o.FadeCount())
	}
	f.step(time.Second)
	if h.IsValid() || dev.IsPlaying() {
		t.Error("handle should be stopped after the fade")
	}
}

func TestStopByEventAndAllSFX(t *testing.T) {
	t.Parallel()
	a := catalog.NewDescriptor("sfx.a", audio.BusSfx, "a")
	a.Loop = true
	ui := catalog.NewDescriptor("ui.b", audio.BusUI, "b")
	ui.Loop = true
	amb := catalog.NewDescriptor("amb.c", audio.BusAmbience, "c")
	amb.Loop = true
	f := newFixture(t, testConfig(), []*catalog.Descriptor{a, ui, amb})
	f.ready(t, "sfx.a", "ui.b", "amb.c")

	f.o.Play("sfx.a")
	f.o.Play("sfx.a")
	uiHandle := f.o.Play("ui.b")
	f.o.Play("amb.c")

	if n := f.o.StopByEventID("sfx.a", 0); n != 2 {
		t.Errorf("StopByEventID = %d, want 2", n)
	}
	f.o.StopAllSFX(0)
	if f.o.ActiveVoiceCount() != 1 || !uiHandle.IsValid() {
		t.Errorf("only the UI voice should remain, have %d", f.o.ActiveVoiceCount())
	}
}

func TestMusic_Crossfade(t *testing.T) {
	t.Parallel()
	first := catalog.NewDescriptor("music.a", audio.BusMusic, "ma")
	first.Loop = true
	second := catalog.NewDescriptor("music.b", audio.BusMusic, "mb")
	second.Loop = true
	f := newFixture(t, testConfig(), []*catalog.Descriptor{first, second})
	f.ready(t, "music.a", "music.b")

	ha := f.o.PlayMusic(first)
	if !ha.IsValid() {
		t.Fatal("music should start")
	}
	devA := f.device(t, ha)
	if devA.Volume() != 0 || devA.Output() != "Music" {
		t.Errorf("incoming music should start silent on the Music group")
	}
	f.step(DefaultMusicFadeIn)
	if !approx(devA.Volume(), 1) {
		t.Fatalf("A volume = %v after fade-in, want 1", devA.Volume())
	}

	hb := f.o.PlayMusic(second, FadeIn(time.Second), Crossfade(time.Second))
	devB := f.device(t, hb)
	if devA == devB {
		t.Fatal("crossfade must use the other channel")
	}

	f.step(250 * time.Millisecond)
	a1, b1 := devA.Volume(), devB.Volume()
	f.step(250 * time.Millisecond)
	a2, b2 := devA.Volume(), devB.Volume()
	if !(a2 < a1 && b2 > b1) || a2 <= 0 || a2 >= 1 || b2 <= 0 || b2 >= 1 {
		t.Fatalf("at 0.5s: A %v→%v, B %v→%v; want A falling and B rising, both partial", a1, a2, b1, b2)
	}

	f.step(500 * time.Millisecond)
	if !approx(devB.Volume(), 1) {
		t.Errorf("B volume = %v at 1s, want 1", devB.Volume())
	}
	if ha.IsValid() || devA.IsPlaying() {
		t.Error("A should be stopped after the crossfade")
	}
	if !hb.IsValid() || !devB.IsPlaying() {
		t.Error("B should keep playing")
	}
	if f.o.ActiveInstances("music.a") != 0 {
		t.Error("stopped music must release its instance")
	}
}

func TestMusic_SameEvent(t *testing.T) {
	t.Parallel()
	track := catalog.NewDescriptor("music.a", audio.BusMusic, "ma")
	track.Loop = true
	f := newFixture(t, testConfig(), []*catalog.Descriptor{track})
	f.ready(t, "music.a")

	h1 := f.o.PlayMusic(track)
	h2 := f.o.PlayMusic(track)
	if h1.ID() != h2.ID() {
		t.Errorf("same track should return the existing handle: %d vs %d", h1.ID(), h2.ID())
	}
	h3 := f.o.PlayMusic(track, RestartIfSame())
	if h3.ID() == h1.ID() || !h3.IsValid() {
		t.Error("RestartIfSame should start a new handle")
	}
}

func TestMusic_Clip(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), nil)
	clip := &audio.Clip{Key: "raw", Length: time.Minute}

	h := f.o.PlayMusicClip(clip, FadeIn(0))
	dev := f.device(t, h)
	if !dev.Loop() || dev.Priority() != musicClipPriority || !approx(dev.Volume(), 1) {
		t.Errorf("music clip: loop=%v priority=%d volume=%v", dev.Loop(), dev.Priority(), dev.Volume())
	}
	if got := f.o.DebugVoices(); len(got) != 1 || got[0].EventID != DirectEventID || !got[0].Music {
		t.Errorf("DebugVoices() = %+v", got)
	}

	f.o.StopMusic(0)
	if h.IsValid() {
		t.Error("StopMusic should stop raw clips too")
	}
}

func TestMusic_RandomStartOffset(t *testing.T) {
	t.Parallel()
	track := catalog.NewDescriptor("music.a", audio.BusMusic, "ma")
	track.Loop = true
	track.RandomStartOffsetMax = 30 * time.Second
	f := newFixture(t, testConfig(), []*catalog.Descriptor{track})
	f.loader.SetClip("ma", time.Minute)
	f.ready(t, "music.a")

	offset := false
	for range 4 {
		dev := f.device(t, f.o.PlayMusic(track, RestartIfSame()))
		got := dev.StartOffset()
		if got < 0 || got > track.RandomStartOffsetMax {
			t.Fatalf("StartOffset() = %v, want within [0, %v]", got, track.RandomStartOffsetMax)
		}
		offset = offset || got > 0
	}
	if !offset {
		t.Error("event music never started past the beginning of its clip")
	}

	raw := f.device(t, f.o.PlayMusicClip(&audio.Clip{Key: "raw", Length: time.Minute}))
	if raw.StartOffset() != 0 {
		t.Errorf("raw music clip StartOffset() = %v, want 0", raw.StartOffset())
	}
}

func TestMusic_FinishedTrackIsCleanedUp(t *testing.T) {
	t.Parallel()
	once := catalog.NewDescriptor("music.sting", audio.BusMusic, "sting")
	f := newFixture(t, testConfig(), []*catalog.Descriptor{once})
	f.ready(t, "music.sting")

	h := f.o.PlayMusic(once, FadeIn(0))
	f.device(t, h).Finish()
	f.step(10 * time.Millisecond)
	if h.IsValid() {
		t.Error("finished music should be unregistered")
	}
}

func TestSnapshot_Priority(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), nil)

	if !f.o.TransitionToSnapshot("alert", time.Second) {
		t.Fatal("first snapshot should apply")
	}
	if f.o.TransitionToSnapshot("ambient", time.Second) {
		t.Error("lower priority in the same frame must be refused")
	}
	if f.o.ActiveSnapshot() != "alert" {
		t.Errorf("ActiveSnapshot() = %q, want alert", f.o.ActiveSnapshot())
	}
	f.step(16 * time.Millisecond)
	if !f.o.TransitionToSnapshot("ambient", -time.Second) {
		t.Error("next frame the latest request wins")
	}
	last := f.mixer.Transitions[len(f.mixer.Transitions)-1]
	if last.Name != "ambient" || last.Duration != 0 {
		t.Errorf("last transition = %+v, want ambient over 0", last)
	}
	if f.o.TransitionToSnapshot("missing", 0) {
		t.Error("unknown snapshot must fail")
	}
}

func TestVolumes_PersistAndMute(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), nil)

	f.o.SetMasterVolume01(0.5)
	db, _ := f.mixer.Param("MasterVolume")
	if !approx(db, 20*math.Log10(0.5)) {
		t.Errorf("MasterVolume = %v dB", db)
	}
	if v, _ := f.store.Float("audio.master.01"); v != 0.5 {
		t.Errorf("stored master = %v, want 0.5", v)
	}
	if f.store.CallCountSave != 1 {
		t.Errorf("Save called %d times, want 1", f.store.CallCountSave)
	}

	f.o.SetSfxVolume01(0)
	if db, _ := f.mixer.Param("SfxVolume"); db != DefaultMinDB {
		t.Errorf("zero volume = %v dB, want %v", db, DefaultMinDB)
	}

	f.o.MuteAll(true)
	if db, _ := f.mixer.Param("MasterVolume"); db != DefaultMinDB {
		t.Errorf("muted master = %v dB", db)
	}
	if v, _ := f.store.Float("audio.master.01"); v != 0.5 {
		t.Error("mute must not be persisted")
	}
	f.o.MuteAll(false)
	if db, _ := f.mixer.Param("MasterVolume"); !approx(db, 20*math.Log10(0.5)) {
		t.Errorf("unmuted master = %v dB", db)
	}

	f.o.SetVolume01(audio.BusVoice, 0.3)
	if _, ok := f.store.Float("audio.voice.01"); ok {
		t.Error("bus without an exposed parameter must be ignored")
	}
}

func TestInit_AppliesStoredVolumes(t *testing.T) {
	t.Parallel()
	clock := &mock.Clock{}
	mixer := &mock.Mixer{}
	store := &mock.Store{Values: map[string]float64{"audio.music.01": 0.25}}
	cfg := testConfig()
	cfg.DefaultVolumes = map[audio.Bus]float64{audio.BusUI: 0}

	o := New(cfg, catalog.New(nil), mock.NewOutput(clock), mock.NewLoader(), WithMixer(mixer), WithStore(store), WithClock(clock))
	o.Init()

	if db, _ := mixer.Param("MusicVolume"); !approx(db, 20*math.Log10(0.25)) {
		t.Errorf("MusicVolume = %v dB", db)
	}
	if db, _ := mixer.Param("UiVolume"); db != DefaultMinDB {
		t.Errorf("UiVolume = %v dB, want default 0 → %v", db, DefaultMinDB)
	}
	if db, _ := mixer.Param("MasterVolume"); db != 0 {
		t.Errorf("MasterVolume = %v dB, want 0", db)
	}
	if store.CallCountSave != 0 {
		t.Error("applying volumes must not save")
	}
}

func TestSetDefaultVolumes_KeepsPersisted(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), nil)
	f.o.SetMusicVolume01(0.5)
	saves := f.store.CallCountSave

	f.o.SetDefaultVolumes(map[audio.Bus]float64{audio.BusMusic: 0.1, audio.BusSfx: 0.1})

	if db, _ := f.mixer.Param("SfxVolume"); !approx(db, 20*math.Log10(0.1)) {
		t.Errorf("SfxVolume = %v dB, want new default", db)
	}
	if db, _ := f.mixer.Param("MusicVolume"); !approx(db, 20*math.Log10(0.5)) {
		t.Errorf("MusicVolume = %v dB, want persisted value", db)
	}
	if f.store.CallCountSave != saves {
		t.Error("new defaults must not be saved")
	}
}

func TestPause_SparesUI(t *testing.T) {
	t.Parallel()
	sfx := catalog.NewDescriptor("sfx.x", audio.BusSfx, "x")
	sfx.Loop = true
	ui := catalog.NewDescriptor("ui.y", audio.BusUI, "y")
	ui.Loop = true
	track := catalog.NewDescriptor("music.z", audio.BusMusic, "z")
	track.Loop = true
	f := newFixture(t, testConfig(), []*catalog.Descriptor{sfx, ui, track})
	f.ready(t, "sfx.x", "ui.y", "music.z")

	hs := f.o.Play("sfx.x")
	hu := f.o.Play("ui.y")
	hm := f.o.PlayMusic(track)

	f.o.PauseAll(true)
	if !f.device(t, hs).Paused() || !f.device(t, hm).Paused() {
		t.Error("sfx and music should pause")
	}
	if f.device(t, hu).Paused() {
		t.Error("UI must keep playing while paused")
	}

	h := f.o.Play("sfx.x")
	if !f.device(t, h).Paused() {
		t.Error("sfx started while paused should start paused")
	}
	f.step(time.Second)
	if !hm.IsValid() {
		t.Error("paused music must not be cleaned up")
	}

	f.o.SetFocus(false)
	f.o.PauseAll(false)
	if !f.o.Paused() {
		t.Error("focus loss should keep the engine paused")
	}
	f.o.SetFocus(true)
	if f.o.Paused() || f.device(t, hs).Paused() {
		t.Error("regaining focus should resume")
	}
}

func TestPause_FocusIgnoredWhenDisabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.PauseOnFocusLost = false
	cfg.PauseOnAppPause = false
	f := newFixture(t, cfg, nil)

	f.o.SetFocus(false)
	f.o.SetAppPaused(true)
	if f.o.Paused() {
		t.Error("focus and app pause are disabled by config")
	}
}

func TestPause_DoesNotExpireVoices(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("sfx.x", audio.BusSfx, "x")
	f := newFixture(t, testConfig(), []*catalog.Descriptor{e})
	f.ready(t, "sfx.x")

	h := f.o.Play("sfx.x")
	f.o.PauseAll(true)
	f.step(5 * time.Second)
	if !h.IsValid() {
		t.Fatal("paused voices must survive auto-release")
	}
	f.o.PauseAll(false)
	f.step(500 * time.Millisecond)
	if !h.IsValid() {
		t.Fatal("resumed voice still has time left")
	}
	f.step(600 * time.Millisecond)
	if h.IsValid() {
		t.Error("voice should finish after its remaining time")
	}
}

func TestSetSoundEnabled_RestoresMusic(t *testing.T) {
	t.Parallel()
	track := catalog.NewDescriptor("music.theme", audio.BusMusic, "theme")
	track.Loop = true
	sfx := catalog.NewDescriptor("sfx.loop", audio.BusSfx, "loop")
	sfx.Loop = true
	f := newFixture(t, testConfig(), []*catalog.Descriptor{track, sfx})
	f.ready(t, "music.theme", "sfx.loop")

	hm := f.o.PlayMusic(track, FadeIn(0))
	hs := f.o.Play("sfx.loop")
	f.o.AcquireScope("level", []string{"sfx.loop"})

	f.o.SetSoundEnabled(false)
	if f.o.Content().Counters().Scopes != 0 {
		t.Error("disabling sound releases all scopes")
	}
	f.step(300 * time.Millisecond)
	if hm.IsValid() || hs.IsValid() {
		t.Fatal("music and sfx should fade out and stop")
	}

	f.step(time.Second)
	f.step(DefaultUnloadDelay)
	if f.o.Content().State("theme") != content.Unloaded {
		t.Fatalf("theme should be evicted, state = %v", f.o.Content().State("theme"))
	}

	f.o.SetSoundEnabled(true)
	if f.o.ActiveVoiceCount() != 0 {
		t.Fatal("music cannot resume before its content reloads")
	}
	f.step(16 * time.Millisecond)
	voices := f.o.DebugVoices()
	if len(voices) != 1 || voices[0].EventID != "music.theme" || !voices[0].Music {
		t.Fatalf("DebugVoices() = %+v, want the restored theme", voices)
	}
	if f.o.restore.pending {
		t.Error("restore should be cleared once music plays")
	}
}

func TestPreloadBank_AndAutoBanks(t *testing.T) {
	t.Parallel()
	a := catalog.NewDescriptor("sfx.a", audio.BusSfx, "a")
	m := catalog.NewDescriptor("music.m", audio.BusMusic, "m")
	b := catalog.NewDescriptor("sfx.b", audio.BusSfx, "b")
	banks := []catalog.Bank{
		{ID: "Core", EventIDs: []string{"sfx.a", "music.m"}, LoadWhenSoundEnabled: true},
		{ID: "Level", EventIDs: []string{"sfx.b"}},
	}
	f := newFixture(t, testConfig(), []*catalog.Descriptor{a, m, b}, banks...)

	if f.loader.LoadCount("a") != 1 || f.loader.LoadCount("m") != 1 {
		t.Errorf("auto bank should load at init, loads = %v", f.loader.LoadCalls)
	}
	if f.loader.LoadCount("b") != 0 {
		t.Error("unflagged bank must not auto-load")
	}

	h := f.o.PreloadBank("level")
	if h.Status() != audio.LoadSucceeded || f.loader.LoadCount("b") != 1 {
		t.Errorf("PreloadBank: status=%v loads=%d", h.Status(), f.loader.LoadCount("b"))
	}
	if h := f.o.PreloadBank("missing"); !h.IsDone() {
		t.Error("unknown bank yields a completed handle")
	}

	f.step(time.Millisecond)
	f.o.UnloadBank("level")
	f.step(DefaultUnloadDelay)
	if f.o.Content().State("b") != content.Unloaded {
		t.Errorf("UnloadBank should evict after the grace period, state = %v", f.o.Content().State("b"))
	}
}

func TestAcquireScope_ReleaseEvicts(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.UnloadDelay = time.Second
	a := catalog.NewDescriptor("sfx.a", audio.BusSfx, "a")
	f := newFixture(t, cfg, []*catalog.Descriptor{a})

	if h := f.o.AcquireScope("", []string{"sfx.a"}); !h.IsDone() || h.Len() != 0 {
		t.Error("empty scope id yields a completed no-op handle")
	}
	h := f.o.AcquireScope("menu", []string{"sfx.a", "sfx.a", "", "nope"})
	if h.Len() != 1 {
		t.Fatalf("handle aggregates %d loads, want 1", h.Len())
	}
	f.step(10 * time.Second)
	if f.o.Content().State("a") != content.Loaded {
		t.Fatal("scoped content stays loaded")
	}

	f.o.ReleaseScope("menu")
	f.step(500 * time.Millisecond)
	f.step(time.Second)
	if f.o.Content().State("a") != content.Unloaded {
		t.Errorf("State(a) = %v, want unloaded after the grace period", f.o.Content().State("a"))
	}
}

func TestPreloadDiscovered(t *testing.T) {
	t.Parallel()
	reg := catalog.NewDiscovery()
	f := &fixture{clock: &mock.Clock{}, loader: mock.NewLoader()}
	f.loader.AutoComplete = true
	f.loader.SetClip("early", time.Second)
	f.loader.SetClip("late", time.Second)
	f.o = New(testConfig(), nil, mock.NewOutput(f.clock), f.loader, WithClock(f.clock), WithDiscovery(reg))
	f.o.Init()

	early := catalog.NewDescriptor("pack.early", audio.BusSfx, "early")
	reg.Register(early)
	marker := f.o.DiscoveryMarker()
	late := catalog.NewDescriptor("pack.late", audio.BusSfx, "late")
	reg.Register(late)

	if h := f.o.PreloadDiscovered(true, ""); h.Status() != audio.LoadFailed {
		t.Error("acquiring without a scope id must fail")
	}
	f.o.PreloadDiscoveredSince(marker, false, "")
	if f.loader.LoadCount("late") != 1 || f.loader.LoadCount("early") != 0 {
		t.Errorf("loads = %v, want only the late event", f.loader.LoadCalls)
	}
	f.o.PreloadDiscovered(true, "pack")
	if f.o.Content().RefCount("early") != 1 {
		t.Error("scoped discovery preload should hold references")
	}
	if s := f.o.Stats(); s.DiscoveredEvents != 2 || s.LastDiscoveredPreloads != 2 || s.Scopes != 1 {
		t.Errorf("Stats() = %+v", s)
	}

	if !f.o.PlaySFX(late).IsValid() {
		t.Error("discovered events play like catalog events")
	}
}

func TestPlayClip_Direct(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), nil)
	clip := &audio.Clip{Key: "raw", Length: 2 * time.Second}

	h := f.o.PlaySFXClip(clip, At(audio.Vec3{Z: 5}), WithPitch(2), WithVolume(0.5))
	dev := f.device(t, h)
	if dev.Spatial().Blend != 1 || dev.Spatial().MaxDistance != catalog.DefaultMaxDistance {
		t.Errorf("spatial = %+v", dev.Spatial())
	}
	if dev.Priority() != catalog.DefaultPriority || dev.Loop() {
		t.Error("direct clips play once at default priority")
	}
	v := f.o.voices[h.ID()].voice
	if v.End-v.Start != time.Second {
		t.Errorf("duration = %v, want 1s at pitch 2", v.End-v.Start)
	}

	ui := f.o.PlayUIClip(clip, At(audio.Vec3{Z: 5}))
	if f.device(t, ui).Spatial().Blend != 0 || f.device(t, ui).Output() != "UI" {
		t.Error("UI clips are 2D on the UI group")
	}
	if f.o.PlayUIClip(nil).IsValid() {
		t.Error("nil clip must be rejected")
	}
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	e := catalog.NewDescriptor("sfx.x", audio.BusSfx, "x")
	e.Loop = true
	f := newFixture(t, testConfig(), []*catalog.Descriptor{e})
	f.ready(t, "sfx.x")
	h := f.o.Play("sfx.x")
	f.o.Stop(h, time.Second)

	f.o.Shutdown()
	s := f.o.Stats()
	if s.ActiveVoices != 0 || s.Fades != 0 || s.LoadedClips != 0 || s.Pool2DInUse != 0 {
		t.Errorf("Stats() after shutdown = %+v", s)
	}
}

func TestRNG_Deterministic(t *testing.T) {
	t.Parallel()
	a, b := newRNG(), newRNG()
	for range 100 {
		x, y := a.next01(), b.next01()
		if x != y || x < 0 || x > 1 {
			t.Fatalf("next01 = %v / %v", x, y)
		}
	}
}
