package strategy

// nextState is the transition table. Unknown (state, event) pairs keep the
// current state; STOPPING is terminal.
func nextState(current State, event Event) State {
	switch current {
	case StateFlat:
		switch event {
		case EventOpened, EventPositionSeen:
			return StateInTrade
		case EventStop:
			return StateStopping
		}
	case StateInTrade:
		switch event {
		case EventClosed, EventFlatSeen:
			return StateFlat
		case EventStop:
			return StateStopping
		}
	case "":
		switch event {
		case EventPositionSeen:
			return StateInTrade
		case EventFlatSeen:
			return StateFlat
		case EventStop:
			return StateStopping
		}
	}
	return current
}

func tradeable(s Snapshot) error {
	if s.State == StateStopping {
		return ErrStopped
	}
	return nil
}
