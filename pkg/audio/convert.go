package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of PCM content.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FormatConverter converts clips to a target format. It logs a warning on the
// first format mismatch. Safe for concurrent use.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert returns c converted to the target format. If the clip already
// matches, it is returned unchanged. Conversion order: resample first, then
// channel convert.
func (fc *FormatConverter) Convert(c *Clip) *Clip {
	if c == nil {
		return nil
	}
	src := Format{SampleRate: c.SampleRate, Channels: c.Channels}
	if src == fc.Target || fc.Target.SampleRate <= 0 || fc.Target.Channels <= 0 {
		return c
	}

	fc.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting clips", "from", src, "to", fc.Target)
	})

	pcm := c.Samples
	if src.SampleRate != fc.Target.SampleRate {
		pcm = Resample(pcm, src.Channels, src.SampleRate, fc.Target.SampleRate)
	}
	switch {
	case src.Channels == 1 && fc.Target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case src.Channels == 2 && fc.Target.Channels == 1:
		pcm = StereoToMono(pcm)
	case src.Channels != fc.Target.Channels:
		pcm = Downmix(pcm, src.Channels, fc.Target.Channels)
	}
	return NewClip(c.Key, pcm, fc.Target.SampleRate, fc.Target.Channels)
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []float32) []float32 {
	out := make([]float32, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// StereoToMono averages L+R per stereo frame.
func StereoToMono(pcm []float32) []float32 {
	frames := len(pcm) / 2
	out := make([]float32, frames)
	for i := range frames {
		out[i] = (pcm[i*2] + pcm[i*2+1]) / 2
	}
	return out
}

// Downmix maps interleaved PCM with srcCh channels to dstCh channels by
// averaging surplus channels into the last output channel, or repeating the
// last input channel when dstCh is larger.
func Downmix(pcm []float32, srcCh, dstCh int) []float32 {
	if srcCh <= 0 || dstCh <= 0 || srcCh == dstCh {
		return pcm
	}
	frames := len(pcm) / srcCh
	out := make([]float32, frames*dstCh)
	for f := range frames {
		in := pcm[f*srcCh : (f+1)*srcCh]
		for c := range dstCh {
			switch {
			case c < dstCh-1 && c < srcCh:
				out[f*dstCh+c] = in[c]
			case c >= srcCh:
				out[f*dstCh+c] = in[srcCh-1]
			default:
				var sum float32
				for _, s := range in[c:] {
					sum += s
				}
				out[f*dstCh+c] = sum / float32(srcCh-c)
			}
		}
	}
	return out
}

// Resample converts interleaved PCM from srcRate to dstRate using linear
// interpolation. If the rates match, the input is returned unchanged.
func Resample(pcm []float32, channels, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < channels {
		return pcm
	}
	srcFrames := len(pcm) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]float32, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))
		next := srcIdx + 1
		if next >= srcFrames {
			next = srcIdx
		}
		for c := range channels {
			s0 := pcm[srcIdx*channels+c]
			s1 := pcm[next*channels+c]
			out[i*channels+c] = s0*(1-frac) + s1*frac
		}
	}
	return out
}

// Int16ToFloat converts a signed 16-bit sample to float32 in [-1, 1).
func Int16ToFloat(v int16) float32 {
	return float32(v) / 32768.0
}

// IntToFloat converts an integer sample of the given bit depth to float32.
func IntToFloat(v, bitDepth int) float32 {
	switch bitDepth {
	case 8:
		// 8-bit PCM is unsigned.
		return float32(v-128) / 128.0
	case 16:
		return float32(v) / 32768.0
	case 24:
		return float32(v) / 8388608.0
	case 32:
		return float32(float64(v) / 2147483648.0)
	default:
		return 0
	}
}
