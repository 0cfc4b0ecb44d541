package host

import (
	"time"
)

// EventKind identifies a lifecycle transition.
type EventKind int

const (
	EventStarted EventKind = iota
	EventReloaded
	EventReset
	EventLoadFailed
	EventFrameTrap
	EventShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventReloaded:
		return "reloaded"
	case EventReset:
		return "reset"
	case EventLoadFailed:
		return "load_failed"
	case EventFrameTrap:
		return "frame_trap"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event describes one transition.
type Event struct {
	Time       time.Time
	Err        error
	Kind       EventKind
	Version    int
	Retired    int
	MemorySize uint32
}

// Observer receives events on the frame-loop goroutine. It must not block.
type Observer func(Event)

// Stats is a point-in-time snapshot of the host.
type Stats struct {
	Started      time.Time
	LastReload   time.Time
	Session      string
	Frames       uint64
	Version      int
	Reloads      int
	Resets       int
	LoadFailures int
	Traps        int
	Retired      int
	QueuePending int64
	MemorySize   uint32
	Running      bool
}
