package job

// State represents the lifecycle state of a job instance.
type State string

const (
	// StateQueued is the initial state: the job waits for the scheduler to
	// be unpaused, for its dependencies and for argument validation.
	StateQueued State = "queued"
	// StateReady means the argument validated and the handler is about to run.
	StateReady State = "ready"
	// StateStarted means the handler signalled Start.
	StateStarted State = "started"
	// StateEnded means the job completed.
	StateEnded State = "ended"
	// StateErrored means the job failed.
	StateErrored State = "errored"
)

// Terminal reports whether s is an end state.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateErrored
}

// Accepts reports whether a lifecycle message of kind k may be delivered
// while the job is in state s, and the state it leads to.
func (s State) Accepts(k Kind) (State, bool) {
	switch k {
	case KindOnReady:
		if s == StateQueued {
			return StateReady, true
		}
	case KindStart:
		if s == StateReady {
			return StateStarted, true
		}
	case KindEnd:
		if s == StateReady || s == StateStarted {
			return StateEnded, true
		}
	default:
		if !s.Terminal() {
			return s, true
		}
	}
	return s, false
}
