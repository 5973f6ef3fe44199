package graphic

import (
	"math"
	"os"
	"testing"
	"time"

	"github.com/noriah/bcifeed/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarExtent(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		from, to int
	}{
		{"zero", 0, 11, 11},
		{"full right", 1, 11, 21},
		{"full left", -1, 0, 10},
		{"half right", 0.5, 11, 16},
		{"clamped right", 3, 11, 21},
		{"clamped left", -7, 0, 10},
		{"nan", math.NaN(), 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := barExtent(tt.value, 10, 10)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestMonitorState(t *testing.T) {
	m := NewMonitor(Config{ROIs: 2, SampleRate: 8, Smoothing: 500 * time.Millisecond})

	m.Observe(model.Marker{Value: "Start_of_Trial_r", Time: 1}, model.PhaseSleep)
	m.Observe(model.Marker{Value: "Feedback", Time: 4}, model.PhaseFeedback)

	require.NoError(t, m.Classification().Write([]float32{1, 0.75}))
	require.Error(t, m.Classification().Write([]float32{1}))

	// window of 4 samples
	for _, v := range []float32{1, 1, 1, 1, -1, -1} {
		require.NoError(t, m.ERDS().Write([]float32{v, float32(math.NaN())}))
	}
	require.Error(t, m.ERDS().Write([]float32{1}))

	var st state
	m.snapshot(&st)

	assert.Equal(t, model.PhaseFeedback, st.phase)
	assert.Equal(t, "Feedback", st.marker.Value)
	assert.Equal(t, model.LabelRight, st.trial)
	assert.True(t, st.classOK)
	assert.Equal(t, 1, st.label)
	assert.InDelta(t, 0.75, st.distance, 1e-6)
	assert.InDelta(t, 0, st.erds[0], 1e-9)
	assert.Equal(t, 0.0, st.erds[1])
	assert.Contains(t, st.header(), "FEEDBACK")
	assert.Contains(t, st.header(), "right")

	m.Observe(model.Marker{Value: "End_of_Trial", Time: 9}, model.PhaseBreak)
	m.snapshot(&st)

	assert.False(t, st.classOK)
	assert.Equal(t, []float64{0, 0}, st.erds)

	require.NoError(t, m.ERDS().Write([]float32{-0.5, 0.25}))
	m.snapshot(&st)
	assert.InDelta(t, -0.5, st.erds[0], 1e-9)
	assert.InDelta(t, 0.25, st.erds[1], 1e-9)
}

func TestNormalizeTerminal(t *testing.T) {
	t.Setenv("TERM", "tmux-256color")
	t.Setenv("TERMINFO", "/tmp/terminfo")

	restore, err := normalizeTerminal()
	require.NoError(t, err)

	_, had := os.LookupEnv("TERMINFO")
	assert.False(t, had)

	restore()
	assert.Equal(t, "/tmp/terminfo", os.Getenv("TERMINFO"))
}
