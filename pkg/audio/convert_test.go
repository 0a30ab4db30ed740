package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
)

func approxEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestMonoToStereo(t *testing.T) {
	got := audio.MonoToStereo([]float32{0.1, 0.2, 0.3})
	want := []float32{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	got := audio.StereoToMono([]float32{0.1, 0.3, -0.2, -0.4})
	want := []float32{0.2, -0.3}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix(t *testing.T) {
	// One frame of 4 channels down to stereo: L stays, R averages the rest.
	got := audio.Downmix([]float32{0.4, 0.2, 0.4, 0.6}, 4, 2)
	want := []float32{0.4, 0.4}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name     string
		pcm      []float32
		channels int
		src, dst int
		wantLen  int
	}{
		{name: "same rate", pcm: []float32{1, 2, 3}, channels: 1, src: 48000, dst: 48000, wantLen: 3},
		{name: "upsample mono", pcm: make([]float32, 100), channels: 1, src: 24000, dst: 48000, wantLen: 200},
		{name: "downsample stereo", pcm: make([]float32, 200), channels: 2, src: 48000, dst: 16000, wantLen: 66},
		{name: "invalid rate", pcm: []float32{1, 2}, channels: 1, src: 0, dst: 48000, wantLen: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.Resample(tt.pcm, tt.channels, tt.src, tt.dst)
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestResample_Interpolates(t *testing.T) {
	got := audio.Resample([]float32{0, 1}, 1, 1, 2)
	want := []float32{0, 0.5, 1, 1}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFormatConverter_PassThrough(t *testing.T) {
	c := audio.NewClip("a", []float32{0, 0}, 48000, 2)
	fc := &audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	if got := fc.Convert(c); got != c {
		t.Error("matching clip should be returned unchanged")
	}
}

func TestFormatConverter_Converts(t *testing.T) {
	c := audio.NewClip("a", make([]float32, 24000), 24000, 1)
	fc := &audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	got := fc.Convert(c)
	if got.SampleRate != 48000 || got.Channels != 2 {
		t.Fatalf("format = %dHz/%d, want 48000Hz/2", got.SampleRate, got.Channels)
	}
	if got.Frames() != 48000 {
		t.Errorf("frames = %d, want 48000", got.Frames())
	}
	if got.Length != time.Second {
		t.Errorf("length = %v, want 1s", got.Length)
	}
	if got.Key != "a" {
		t.Errorf("key = %q, want a", got.Key)
	}
}

func TestIntToFloat(t *testing.T) {
	tests := []struct {
		v, depth int
		want     float32
	}{
		{v: 128, depth: 8, want: 0},
		{v: -32768, depth: 16, want: -1},
		{v: 4194304, depth: 24, want: 0.5},
		{v: 7, depth: 12, want: 0},
	}
	for _, tt := range tests {
		if got := audio.IntToFloat(tt.v, tt.depth); !approxEqual(got, tt.want) {
			t.Errorf("IntToFloat(%d, %d) = %v, want %v", tt.v, tt.depth, got, tt.want)
		}
	}
}
