package coordinator

// State is the phase of the coordinator's run.
type State int32

const (
	Idle State = iota
	Initializing
	RoundFit
	RoundEvaluate
	Aggregating
	RoundDone
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case RoundFit:
		return "round_fit"
	case RoundEvaluate:
		return "round_evaluate"
	case Aggregating:
		return "aggregating"
	case RoundDone:
		return "round_done"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Finished || s == Failed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
