package task

import (
	"math"
	"time"
)

// StageRange maps a named progress stage onto a slice of the normalized
// 0-100 percent scale.
type StageRange struct {
	Start int
	End   int
}

// DefaultStageWeights is the stage-weight table used by the extraction UI.
// The exact values are a compatibility contract with existing clients, which
// is why they live in configuration rather than inline literals.
func DefaultStageWeights() map[string]StageRange {
	return map[string]StageRange{
		"initializing": {Start: 0, End: 5},
		"detecting":    {Start: 5, End: 15},
		"analyzing":    {Start: 15, End: 25},
		"extracting":   {Start: 25, End: 75},
		"scrolling":    {Start: 75, End: 85},
		"expanding":    {Start: 85, End: 90},
		"validating":   {Start: 90, End: 95},
		"complete":     {Start: 100, End: 100},
	}
}

// ProgressUpdate is a raw stage/count report from an executor or an external
// extraction agent, before normalization.
type ProgressUpdate struct {
	Stage        string `json:"stage"`
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	StageMessage string `json:"stageMessage,omitempty"`
}

// etaUnknown is reported when no time estimate can be computed.
const etaUnknown = -1

// translator maps heterogeneous stage/count reports into a normalized
// percent and an ETA estimate based on elapsed wall-clock time.
type translator struct {
	weights map[string]StageRange
	now     func() time.Time
}

func newTranslator(weights map[string]StageRange, now func() time.Time) *translator {
	if weights == nil {
		weights = DefaultStageWeights()
	}
	if now == nil {
		now = time.Now
	}
	return &translator{weights: weights, now: now}
}

// percent computes the normalized progress for a stage report. Within a
// stage the value advances linearly with current/total; with no total the
// value stays at the start of the stage's range. Unknown stages report the
// start of the scale.
func (tr *translator) percent(u ProgressUpdate) int {
	rng, ok := tr.weights[u.Stage]
	if !ok {
		return 0
	}
	if u.Total <= 0 {
		return rng.Start
	}
	width := float64(rng.End - rng.Start)
	p := float64(rng.Start) + float64(u.Current)/float64(u.Total)*width
	pct := int(math.Round(p))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// eta estimates the remaining seconds from elapsed time and percent done.
// Estimates are meaningless at the very start (tiny denominators explode)
// and at completion, so outside 5 < percent < 100 the ETA is unknown.
func (tr *translator) eta(startMillis int64, percent int) int {
	if percent <= 5 || percent >= 100 || startMillis <= 0 {
		return etaUnknown
	}
	elapsed := tr.now().UnixMilli() - startMillis
	if elapsed <= 0 {
		return etaUnknown
	}
	remaining := float64(elapsed) * float64(100-percent) / float64(percent) / 1000.0
	return int(math.Ceil(remaining))
}
