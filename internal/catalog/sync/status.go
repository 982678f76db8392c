package sync

// Status is the synchronisation state surfaced to consumers.
type Status int32

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReadyFromCache
	StatusReadyFromNetwork
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReadyFromCache:
		return "ready_from_cache"
	case StatusReadyFromNetwork:
		return "ready_from_network"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Ready reports whether s is one of the ready states.
func (s Status) Ready() bool {
	return s == StatusReadyFromCache || s == StatusReadyFromNetwork
}

// Terminal reports whether an Initialize call has finished in s.
func (s Status) Terminal() bool {
	return s.Ready() || s == StatusError
}
