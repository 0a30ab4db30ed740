package audio

import "context"

// LoadStatus is the state of an asynchronous load.
type LoadStatus int

const (
	LoadNone LoadStatus = iota
	LoadLoading
	LoadSucceeded
	LoadFailed
)

func (s LoadStatus) String() string {
	switch s {
	case LoadLoading:
		return "loading"
	case LoadSucceeded:
		return "succeeded"
	case LoadFailed:
		return "failed"
	default:
		return "none"
	}
}

// LoadOp is a single in-flight asset load. It is polled, never awaited: the
// engine checks Done once per tick and never blocks on it.
type LoadOp interface {
	Done() bool
	// Progress is in [0, 1].
	Progress() float64
	Status() LoadStatus
	// Result is the decoded clip once Status is LoadSucceeded.
	Result() *Clip
	// Err is the failure cause once Status is LoadFailed.
	Err() error
	// Release drops the loader's hold on the asset. Releasing an unfinished
	// op cancels it.
	Release()
}

// Loader starts asynchronous loads by asset key.
type Loader interface {
	Load(ctx context.Context, key string) LoadOp
}
