package fsloader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// ErrUnsupportedFormat is returned for files whose extension has no decoder.
var ErrUnsupportedFormat = errors.New("fsloader: unsupported format")

// ErrInvalidFile is returned when a file does not parse as its format.
var ErrInvalidFile = errors.New("fsloader: invalid audio file")

// decodeFunc turns an encoded file into interleaved float32 samples.
type decodeFunc func(data []byte) (samples []float32, sampleRate, channels int, err error)

// decoders maps lower-case file extensions to their decoder.
var decoders = map[string]decodeFunc{
	".wav": decodeWAV,
	".mp3": decodeMP3,
	".ogg": decodeOGG,
}

// Extensions lists the supported file extensions in lookup order.
var Extensions = []string{".wav", ".ogg", ".mp3"}

// Decode decodes data according to ext and returns a clip under key.
func Decode(key, ext string, data []byte) (*audio.Clip, error) {
	dec, ok := decoders[strings.ToLower(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	samples, rate, channels, err := dec(data)
	if err != nil {
		return nil, err
	}
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %d Hz, %d channels", ErrInvalidFile, rate, channels)
	}
	return audio.NewClip(key, samples, rate, channels), nil
}

func decodeWAV(data []byte) ([]float32, int, int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: not a PCM wav file", ErrInvalidFile)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("fsloader: decode wav: %w", err)
	}
	return intBufferToFloat(buf, int(d.BitDepth)), buf.Format.SampleRate, buf.Format.NumChannels, nil
}

func intBufferToFloat(buf *goaudio.IntBuffer, bitDepth int) []float32 {
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = audio.IntToFloat(v, bitDepth)
	}
	return out
}

// go-mp3 always produces 16-bit little-endian stereo.
const mp3Channels = 2

func decodeMP3(data []byte) ([]float32, int, int, error) {
	dec, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("fsloader: decode mp3: %w", err)
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		samples[i] = audio.Int16ToFloat(v)
	}
	return samples, dec.SampleRate(), mp3Channels, nil
}

func decodeOGG(data []byte) ([]float32, int, int, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	return samples, format.SampleRate, format.Channels, nil
}
