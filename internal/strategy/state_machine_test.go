package strategy

import "testing"

func TestNextStateTransitions(t *testing.T) {
	cases := []struct {
		from  State
		event Event
		want  State
	}{
		{StateFlat, EventOpened, StateInTrade},
		{StateFlat, EventPositionSeen, StateInTrade},
		{StateFlat, EventFlatSeen, StateFlat},
		{StateFlat, EventClosed, StateFlat},
		{StateInTrade, EventClosed, StateFlat},
		{StateInTrade, EventFlatSeen, StateFlat},
		{StateInTrade, EventOpened, StateInTrade},
		{StateInTrade, EventStop, StateStopping},
		{StateFlat, EventStop, StateStopping},
		{StateStopping, EventPositionSeen, StateStopping},
		{StateStopping, EventOpened, StateStopping},
		{"", EventPositionSeen, StateInTrade},
		{"", EventFlatSeen, StateFlat},
	}
	for _, tc := range cases {
		if got := nextState(tc.from, tc.event); got != tc.want {
			t.Fatalf("%s + %s: expected %s, got %s", tc.from, tc.event, tc.want, got)
		}
	}
}
