package interaction

// State is the interaction phase of the training session.
type State int

const (
	// Init is the state right after startup, before any prompt context exists.
	Init State = iota
	// Generating means messages are being produced; user queries are deflected.
	Generating
	// Engaged means the trainee reviews messages and may ask questions.
	Engaged
	// Coaching means the trainee flagged a message and receives feedback.
	Coaching
)

// States lists every state in declaration order.
var States = []State{Init, Generating, Engaged, Coaching}

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Generating:
		return "GENERATING"
	case Engaged:
		return "ENGAGED"
	case Coaching:
		return "COACHING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateNames returns the names of all states.
func StateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = s.String()
	}
	return names
}
