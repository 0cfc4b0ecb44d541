package host

// Action is the outcome of a reload check.
type Action int

const (
	// ActionNone means the artifact is unchanged or unreadable.
	ActionNone Action = iota

	// ActionIncremental means a same-size module replaced the active one.
	ActionIncremental

	// ActionFullReset means a different-size module replaced the active one
	// on a fresh State.
	ActionFullReset

	// ActionLoadFailed means the artifact changed but could not be loaded.
	ActionLoadFailed
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionIncremental:
		return "incremental"
	case ActionFullReset:
		return "full_reset"
	case ActionLoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}
