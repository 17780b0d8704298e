package models

// Phase is the navigation transition phase.
type Phase int

const (
	// PhaseIdle accepts new navigation.
	PhaseIdle Phase = iota
	// PhaseLocked is held while a boundary move fetches chapter data.
	PhaseLocked
	// PhaseAnimating covers the exit animation, commit and settle delays.
	PhaseAnimating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLocked:
		return "locked"
	case PhaseAnimating:
		return "animating"
	default:
		return "unknown"
	}
}

// Direction tags the animation.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp             // toward earlier verses
	DirectionDown           // toward later verses
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// TransitionState is the navigation controller's externally visible state.
type TransitionState struct {
	Phase     Phase
	Direction Direction
}

// Busy reports whether a navigation is in flight.
func (t TransitionState) Busy() bool {
	return t.Phase != PhaseIdle
}

// phaseTransitions lists every legal phase change.
var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseLocked, PhaseAnimating},
	PhaseLocked:    {PhaseAnimating, PhaseIdle},
	PhaseAnimating: {PhaseIdle},
}

// CanTransition reports whether from → to is a legal phase change.
func CanTransition(from, to Phase) bool {
	for _, p := range phaseTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
