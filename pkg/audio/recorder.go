package audio

import "time"

// Recorder receives engine events for instrumentation. Calls happen on the
// tick goroutine and must not block.
type Recorder interface {
	// PlayStarted is called when a play request produced a running voice.
	PlayStarted(bus Bus, music bool)
	// PlayRejected is called when a play request was a no-op. reason is a
	// short machine-friendly token such as "cooldown" or "pool_full".
	PlayRejected(bus Bus, reason string)
	// VoiceStolen is called when a pool evicts an in-use voice.
	VoiceStolen(pool string)
	// LoadFinished is called once per load operation when it settles.
	LoadFinished(key string, status LoadStatus)
	// ContentEvicted is called when a loaded asset is released.
	ContentEvicted(key string)
	// TickDuration reports how long one engine tick took.
	TickDuration(d time.Duration)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) PlayStarted(Bus, bool)           {}
func (NopRecorder) PlayRejected(Bus, string)        {}
func (NopRecorder) VoiceStolen(string)              {}
func (NopRecorder) LoadFinished(string, LoadStatus) {}
func (NopRecorder) ContentEvicted(string)           {}
func (NopRecorder) TickDuration(time.Duration)      {}
