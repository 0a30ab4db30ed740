package orchestrator

import (
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// fadeJob linearly ramps one handle's device volume. There is at most one
// job per handle.
type fadeJob struct {
	handle   int64
	device   audio.Device
	from     float64
	to       float64
	duration time.Duration
	elapsed  time.Duration
	stop     bool
}

// enqueueFade starts a volume ramp for handle, replacing any ramp already
// running for it. A non-positive duration applies to immediately.
func (o *Orchestrator) enqueueFade(handle int64, dev audio.Device, from, to float64, d time.Duration, stop bool) {
	if dev == nil {
		return
	}
	if d <= 0 {
		dev.SetVolume(to)
		o.removeFades(handle)
		if stop {
			o.completeStop(handle)
		}
		return
	}
	job := fadeJob{handle: handle, device: dev, from: from, to: to, duration: d, stop: stop}
	for i := range o.fades {
		if o.fades[i].handle == handle {
			o.fades[i] = job
			return
		}
	}
	o.fades = append(o.fades, job)
}

func (o *Orchestrator) removeFades(handle int64) {
	for i := len(o.fades) - 1; i >= 0; i-- {
		if o.fades[i].handle == handle {
			o.fades = append(o.fades[:i], o.fades[i+1:]...)
		}
	}
}

// updateFades advances every ramp by dt. Finished stop ramps stop their
// handle; finished plain ramps are dropped.
func (o *Orchestrator) updateFades(dt time.Duration) {
	for i := len(o.fades) - 1; i >= 0; i-- {
		if i >= len(o.fades) {
			continue
		}
		job := &o.fades[i]
		if job.device == nil {
			o.fades = append(o.fades[:i], o.fades[i+1:]...)
			continue
		}
		job.elapsed += dt
		t := 1.0
		if job.duration > 0 {
			t = audio.Clamp01(float64(job.elapsed) / float64(job.duration))
		}
		job.device.SetVolume(lerp(job.from, job.to, t))
		if t < 1 {
			continue
		}
		handle, stop := job.handle, job.stop
		o.removeFades(handle)
		if stop {
			o.completeStop(handle)
		}
	}
}

// FadeCount returns the number of running volume ramps.
func (o *Orchestrator) FadeCount() int { return len(o.fades) }
