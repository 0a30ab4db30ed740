package content

import (
	"errors"
	"fmt"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// ErrLoadFailed is wrapped by every error reported for a failed asset load.
var ErrLoadFailed = errors.New("content: load failed")

// LoadHandle aggregates the load operations started (or joined) by one
// preload call. It is a snapshot: operations started later by other calls
// are not reflected.
type LoadHandle struct {
	ops    []audio.LoadOp
	reason string
}

// Completed returns a handle that is already done and succeeded.
func Completed() *LoadHandle { return &LoadHandle{} }

// FailedHandle returns a handle that is already done and failed with reason.
func FailedHandle(reason string) *LoadHandle { return &LoadHandle{reason: reason} }

// FromOps aggregates ops. No ops means an already-completed handle.
func FromOps(ops []audio.LoadOp) *LoadHandle { return &LoadHandle{ops: ops} }

// IsDone reports whether every aggregated operation has settled.
func (h *LoadHandle) IsDone() bool {
	if h == nil {
		return true
	}
	for _, op := range h.ops {
		if !op.Done() {
			return false
		}
	}
	return true
}

// Progress is the average progress of the aggregated operations in [0, 1].
func (h *LoadHandle) Progress() float64 {
	if h == nil || len(h.ops) == 0 {
		return 1
	}
	var sum float64
	for _, op := range h.ops {
		if op.Done() {
			sum++
			continue
		}
		sum += audio.Clamp01(op.Progress())
	}
	return sum / float64(len(h.ops))
}

// Status summarises the handle: LoadFailed if it was created failed or any
// settled operation failed, LoadLoading while anything is in flight,
// otherwise LoadSucceeded.
func (h *LoadHandle) Status() audio.LoadStatus {
	if h == nil {
		return audio.LoadSucceeded
	}
	if h.reason != "" {
		return audio.LoadFailed
	}
	loading := false
	for _, op := range h.ops {
		if !op.Done() {
			loading = true
			continue
		}
		if op.Status() == audio.LoadFailed {
			return audio.LoadFailed
		}
	}
	if loading {
		return audio.LoadLoading
	}
	return audio.LoadSucceeded
}

// Err joins the failures of all settled operations. It is nil while nothing
// has failed.
func (h *LoadHandle) Err() error {
	if h == nil {
		return nil
	}
	if h.reason != "" {
		return fmt.Errorf("%w: %s", ErrLoadFailed, h.reason)
	}
	var errs []error
	for _, op := range h.ops {
		if !op.Done() || op.Status() != audio.LoadFailed {
			continue
		}
		if err := op.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrLoadFailed, err))
		} else {
			errs = append(errs, ErrLoadFailed)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of aggregated operations.
func (h *LoadHandle) Len() int {
	if h == nil {
		return 0
	}
	return len(h.ops)
}
