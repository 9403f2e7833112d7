package registry

// DispatchState is a per-slot attach/detach state. Emergency is
// orthogonal to the others: it remembers and later restores whichever
// of the four below was active when the emergency started.
type DispatchState int

const (
	Idle DispatchState = iota
	Attaching
	Attached
	Detaching
	Emergency
)

func (s DispatchState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attaching:
		return "attaching"
	case Attached:
		return "attached"
	case Detaching:
		return "detaching"
	case Emergency:
		return "emergency"
	default:
		return "unknown"
	}
}
