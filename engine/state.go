package engine

// State is the lifecycle stage of an Engine.
type State int

const (
	Uninitialized    State = iota
	ResourcesReady         // device, queue, library and pipelines
	BuffersReady           // allocated and seeded from the host
	FieldInitialized       // initialization kernel done, mirror refreshed
	Stepping
	Released
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ResourcesReady:
		return "resources-ready"
	case BuffersReady:
		return "buffers-ready"
	case FieldInitialized:
		return "field-initialized"
	case Stepping:
		return "stepping"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// CanStep reports whether ComputeTimestep is allowed in s.
func (s State) CanStep() bool {
	return s == FieldInitialized || s == Stepping
}
