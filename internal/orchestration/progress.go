package orchestration

import (
	"time"

	"github.com/agbru/hiersurr/internal/format"
)

// ProgressUpdate reports the completed fraction of one study phase.
type ProgressUpdate struct {
	// Phase is the index of the phase sending the update.
	Phase int
	// Value is the completed fraction, 0.0 to 1.0.
	Value float64
}

// ProgressAggregator averages phase progress and estimates the remaining
// time. It wraps format.ProgressWithETA for channel consumers.
type ProgressAggregator struct {
	state     *format.ProgressWithETA
	numPhases int
}

// NewProgressAggregator creates an aggregator for numPhases phases.
// Returns nil if numPhases <= 0.
func NewProgressAggregator(numPhases int) *ProgressAggregator {
	if numPhases <= 0 {
		return nil
	}
	return &ProgressAggregator{
		state:     format.NewProgressWithETA(numPhases),
		numPhases: numPhases,
	}
}

// AggregatedProgress holds the result of processing a single progress update.
type AggregatedProgress struct {
	Phase           int
	Value           float64
	AverageProgress float64
	ETA             time.Duration
}

// Update processes a single progress update and returns the aggregated result.
func (a *ProgressAggregator) Update(update ProgressUpdate) AggregatedProgress {
	avg, eta := a.state.UpdateWithETA(update.Phase, update.Value)
	return AggregatedProgress{
		Phase:           update.Phase,
		Value:           update.Value,
		AverageProgress: avg,
		ETA:             eta,
	}
}

// CalculateAverage returns the current average progress without updating.
func (a *ProgressAggregator) CalculateAverage() float64 { return a.state.CalculateAverage() }

// GetETA returns the current ETA estimate without updating.
func (a *ProgressAggregator) GetETA() time.Duration { return a.state.GetETA() }

// NumPhases returns the number of phases being tracked.
func (a *ProgressAggregator) NumPhases() int { return a.numPhases }

// DrainChannel reads all updates from the channel without processing.
func DrainChannel(progressChan <-chan ProgressUpdate) {
	for range progressChan {
	}
}
