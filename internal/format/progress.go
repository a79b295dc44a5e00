package format

import (
	"fmt"
	"strings"
	"time"
)

// maxETA caps the estimate shown for stalled phases.
const maxETA = 24 * time.Hour

// ProgressState tracks the completion fraction of each phase of a study and
// averages them into one figure.
type ProgressState struct {
	progresses []float64
	numPhases  int
}

// NewProgressState creates a state tracking numPhases phases.
func NewProgressState(numPhases int) *ProgressState {
	return &ProgressState{
		progresses: make([]float64, max(numPhases, 0)),
		numPhases:  numPhases,
	}
}

// Update records the fraction completed by phase index. Out of range
// indices are ignored and values are clamped to [0, 1].
func (ps *ProgressState) Update(index int, value float64) {
	if index < 0 || index >= len(ps.progresses) {
		return
	}
	ps.progresses[index] = min(max(value, 0), 1)
}

// CalculateAverage returns the mean completion over all phases.
func (ps *ProgressState) CalculateAverage() float64 {
	if ps.numPhases <= 0 {
		return 0
	}
	var total float64
	for _, p := range ps.progresses {
		total += p
	}
	return total / float64(ps.numPhases)
}

// ProgressWithETA extends ProgressState with a smoothed completion rate.
type ProgressWithETA struct {
	*ProgressState
	numPhases    int
	startTime    time.Time
	lastUpdate   time.Time
	lastProgress float64
	progressRate float64
}

// NewProgressWithETA creates a progress tracker for numPhases phases.
func NewProgressWithETA(numPhases int) *ProgressWithETA {
	now := time.Now()
	return &ProgressWithETA{
		ProgressState: NewProgressState(numPhases),
		numPhases:     numPhases,
		startTime:     now,
		lastUpdate:    now,
	}
}

// UpdateWithETA records an update and returns the averaged progress and the
// estimated remaining time.
func (p *ProgressWithETA) UpdateWithETA(index int, value float64) (float64, time.Duration) {
	p.Update(index, value)
	avg := p.CalculateAverage()
	now := time.Now()
	if dt := now.Sub(p.lastUpdate).Seconds(); dt > 0 && avg > p.lastProgress {
		rate := (avg - p.lastProgress) / dt
		if p.progressRate == 0 {
			p.progressRate = rate
		} else {
			p.progressRate = 0.7*p.progressRate + 0.3*rate
		}
		p.lastUpdate, p.lastProgress = now, avg
	}
	return avg, p.GetETA()
}

// GetETA returns the remaining time at the current rate, or zero while no
// rate is known.
func (p *ProgressWithETA) GetETA() time.Duration {
	if p.progressRate <= 0 {
		return 0
	}
	remaining := 1 - p.CalculateAverage()
	if remaining <= 0 {
		return 0
	}
	eta := time.Duration(remaining / p.progressRate * float64(time.Second))
	if eta > maxETA || eta < 0 {
		return maxETA
	}
	return eta
}

// FormatETA renders an ETA compactly.
func FormatETA(eta time.Duration) string {
	switch {
	case eta <= 0:
		return "calculating..."
	case eta < time.Second:
		return "< 1s"
	case eta < time.Minute:
		return fmt.Sprintf("%ds", int(eta.Seconds()))
	case eta < time.Hour:
		m, s := int(eta.Minutes()), int(eta.Seconds())%60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h, m := int(eta.Hours()), int(eta.Minutes())%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%dm", h, m)
}

// ProgressBar draws a bar of length cells for a fraction in [0, 1].
func ProgressBar(progress float64, length int) string {
	progress = min(max(progress, 0), 1)
	count := int(progress * float64(length))
	var b strings.Builder
	b.Grow(length * 3)
	for i := 0; i < length; i++ {
		if i < count {
			b.WriteRune('█')
		} else {
			b.WriteRune('░')
		}
	}
	return b.String()
}

// FormatProgressBarWithETA combines the percentage, the bar and the ETA.
func FormatProgressBarWithETA(progress float64, eta time.Duration, width int) string {
	return fmt.Sprintf("%6.2f%% [%s] ETA: %s", min(max(progress, 0), 1)*100, ProgressBar(progress, width), FormatETA(eta))
}
