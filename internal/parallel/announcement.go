package parallel

import (
	"fmt"

	"github.com/agbru/hiersurr/internal/activekey"
	"github.com/agbru/hiersurr/internal/response"
)

// State is the fidelity currently served by workers.
type State uint8

const (
	// Idle ends the worker service loop.
	Idle State = iota
	// SurrogateActive routes evaluations to the surrogate model.
	SurrogateActive
	// TruthActive routes evaluations to the truth model.
	TruthActive
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SurrogateActive:
		return "surrogate"
	case TruthActive:
		return "truth"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Announcement is one message of the mode stream. Form and Level designate
// the model and solution level of the announced state.
type Announcement struct {
	Seq   uint64        `json:"seq"`
	RunID string        `json:"run_id"`
	Stop  bool          `json:"stop,omitempty"`
	State State         `json:"state"`
	Mode  response.Mode `json:"mode"`
	Form  int           `json:"form"`
	Level int           `json:"level"`
}

// Key returns the simple model key the announcement designates.
func (a Announcement) Key() activekey.Key {
	return activekey.New(0, a.Form, a.Level)
}

func (a Announcement) String() string {
	if a.Stop {
		return fmt.Sprintf("#%d stop %s m%d", a.Seq, a.State, a.Form)
	}
	return fmt.Sprintf("#%d %s %s %s", a.Seq, a.State, a.Mode, a.Key().Component(0))
}
