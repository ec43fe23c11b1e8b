package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTranslatorPercent(t *testing.T) {
	t.Parallel()

	tr := newTranslator(nil, time.Now)

	tests := []struct {
		name string
		u    ProgressUpdate
		want int
	}{
		{"initializing start", ProgressUpdate{Stage: "initializing"}, 0},
		{"detecting no total", ProgressUpdate{Stage: "detecting"}, 5},
		{"extracting halfway", ProgressUpdate{Stage: "extracting", Current: 50, Total: 100}, 50},
		{"extracting done", ProgressUpdate{Stage: "extracting", Current: 100, Total: 100}, 75},
		{"scrolling start", ProgressUpdate{Stage: "scrolling", Current: 0, Total: 10}, 75},
		{"validating partial", ProgressUpdate{Stage: "validating", Current: 1, Total: 2}, 93},
		{"complete", ProgressUpdate{Stage: "complete", Total: 1, Current: 1}, 100},
		{"unknown stage", ProgressUpdate{Stage: "warp", Current: 3, Total: 4}, 0},
		{"current exceeds total", ProgressUpdate{Stage: "extracting", Current: 300, Total: 100}, 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tr.percent(tc.u))
		})
	}
}

func TestTranslatorPercentRounds(t *testing.T) {
	t.Parallel()

	tr := newTranslator(nil, time.Now)

	// extracting spans 25-75, so 1/3 of the way is 25 + 16.67 = 41.67.
	got := tr.percent(ProgressUpdate{Stage: "extracting", Current: 1, Total: 3})
	assert.Equal(t, 42, got)
}

func TestTranslatorETA(t *testing.T) {
	t.Parallel()

	base := time.UnixMilli(1_000_000)
	tr := newTranslator(nil, func() time.Time { return base.Add(10 * time.Second) })
	start := base.UnixMilli()

	// 10s elapsed at 50% leaves an estimated 10s.
	assert.Equal(t, 10, tr.eta(start, 50))

	// 10s elapsed at 25% leaves 30s.
	assert.Equal(t, 30, tr.eta(start, 25))

	// Fractional remainders round up.
	assert.Equal(t, 4, tr.eta(start, 75))
}

func TestTranslatorETAUnknown(t *testing.T) {
	t.Parallel()

	base := time.UnixMilli(1_000_000)
	tr := newTranslator(nil, func() time.Time { return base.Add(10 * time.Second) })
	start := base.UnixMilli()

	assert.Equal(t, etaUnknown, tr.eta(start, 0), "too early to estimate")
	assert.Equal(t, etaUnknown, tr.eta(start, 5), "boundary is exclusive")
	assert.Equal(t, etaUnknown, tr.eta(start, 100), "done tasks have no remaining time")
	assert.Equal(t, etaUnknown, tr.eta(0, 50), "no start time recorded")

	// Clock skew producing non-positive elapsed time yields no estimate.
	backwards := newTranslator(nil, func() time.Time { return base })
	assert.Equal(t, etaUnknown, backwards.eta(start, 50))
}

func TestCustomStageWeights(t *testing.T) {
	t.Parallel()

	tr := newTranslator(map[string]StageRange{
		"upload": {Start: 0, End: 100},
	}, time.Now)

	assert.Equal(t, 40, tr.percent(ProgressUpdate{Stage: "upload", Current: 2, Total: 5}))
	assert.Equal(t, 0, tr.percent(ProgressUpdate{Stage: "extracting", Current: 1, Total: 2}),
		"stages absent from a custom table are unknown")
}
