package bcifeed

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/noriah/bcifeed/calibrate"
	"github.com/noriah/bcifeed/config"
	"github.com/noriah/bcifeed/input"
	"github.com/noriah/bcifeed/model"
	"github.com/noriah/bcifeed/processor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type sliceSession []input.Sample

func (s sliceSession) Start(ctx context.Context, emit func(input.Sample) error) error {
	for _, smpl := range s {
		if err := emit(smpl); err != nil {
			return err
		}
	}
	return nil
}

type noMarkers struct{}

func (noMarkers) Next(context.Context) (model.Marker, error) {
	return model.Marker{}, io.EOF
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) Write([]float32) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

func ramp(n, channels int) sliceSession {
	s := make(sliceSession, n)
	for i := range s {
		values := make([]float32, channels)
		for ch := range values {
			values[ch] = float32(i%50) + float32(ch)
		}
		s[i] = input.Sample{Values: values, Time: float64(i) / 128}
	}
	return s
}

func testSettings(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.EEG.SampleRate = 128
	cfg.General.StartupTimeout = 0.01
	cfg.General.Streams.Buffer = 1
	return cfg
}

func identityModel() *model.Model {
	return &model.Model{
		SpatialFilter: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		Discriminant:  mat.NewDense(2, 3, []float64{0, 1, -1, 0, -1, 1}),
	}
}

func TestRunRecordOnly(t *testing.T) {
	settings := testSettings(t)
	settings.General.Recording.Path = filepath.Join(t.TempDir(), "session.edf")
	settings.General.Recording.PhysicalMin = -100
	settings.General.Recording.PhysicalMax = 100

	err := Run(context.Background(), &Config{
		Settings:   settings,
		RecordOnly: true,
		Session:    ramp(300, 2),
		Markers:    noMarkers{},
	})
	require.NoError(t, err)

	f, err := os.Open(settings.General.Recording.Path)
	require.NoError(t, err)
	defer f.Close()

	ds, err := calibrate.ReadEDF(f)
	require.NoError(t, err)

	// three one second records, the last one padded
	assert.Equal(t, 384, ds.Samples())
	assert.Equal(t, 2, ds.Channels())
	assert.InDelta(t, 49, ds.Data.At(49, 0), 0.01)
	assert.InDelta(t, 1, ds.Data.At(50, 1), 0.01)
	assert.Empty(t, calibrate.Trials(ds.Labels))
}

func TestRunRecordOnlyNeedsPath(t *testing.T) {
	err := Run(context.Background(), &Config{
		Settings:   testSettings(t),
		RecordOnly: true,
		Session:    ramp(10, 2),
		Markers:    noMarkers{},
	})
	assert.Error(t, err)
}

func TestRunWithoutFeedbackPhase(t *testing.T) {
	var cls, erds counter

	err := Run(context.Background(), &Config{
		Settings:       testSettings(t),
		Model:          identityModel(),
		Session:        ramp(500, 2),
		Markers:        noMarkers{},
		Classification: &cls,
		ERDS:           &erds,
	})
	require.NoError(t, err)

	// nothing is emitted outside of the feedback phase
	assert.Zero(t, cls.n)
	assert.Zero(t, erds.n)
}

type chanMarkers chan model.Marker

func (c chanMarkers) Next(ctx context.Context) (model.Marker, error) {
	select {
	case <-ctx.Done():
		return model.Marker{}, ctx.Err()
	case m, ok := <-c:
		if !ok {
			return model.Marker{}, io.EOF
		}
		return m, nil
	}
}

// trialSession plays one trial. It sends each marker and waits for the phase
// to be applied before emitting the samples that belong to it.
type trialSession struct {
	rate    int
	markers chanMarkers
	phases  chan model.Phase

	pos int
}

func (s *trialSession) play(emit func(input.Sample) error, n int) error {
	for end := s.pos + n; s.pos < end; s.pos++ {
		ts := float64(s.pos) / float64(s.rate)
		v := float32(10 * math.Sin(2*math.Pi*12*ts))
		if err := emit(input.Sample{Values: []float32{v, 2 * v}, Time: ts}); err != nil {
			return err
		}
	}
	return nil
}

func (s *trialSession) await(ctx context.Context, want model.Phase) error {
	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errors.Errorf("phase %v not reached", want)
		case p := <-s.phases:
			if p == want {
				return nil
			}
		}
	}
}

func (s *trialSession) mark(ctx context.Context, value string, want model.Phase) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.markers <- model.Marker{Value: value, Time: float64(s.pos) / float64(s.rate)}:
	}
	return s.await(ctx, want)
}

func (s *trialSession) Start(ctx context.Context, emit func(input.Sample) error) error {
	defer close(s.markers)

	if err := s.play(emit, s.rate/8); err != nil {
		return err
	}

	if err := s.await(ctx, model.PhaseSleep); err != nil {
		return err
	}

	if err := s.mark(ctx, "Reference", model.PhaseReference); err != nil {
		return err
	}

	if err := s.play(emit, s.rate); err != nil {
		return err
	}

	if err := s.mark(ctx, "Cue", model.PhaseCue); err != nil {
		return err
	}

	if err := s.mark(ctx, "Feedback", model.PhaseFeedback); err != nil {
		return err
	}

	if err := s.play(emit, s.rate); err != nil {
		return err
	}

	return s.mark(ctx, "End_of_Trial", model.PhaseBreak)
}

func TestRunTrial(t *testing.T) {
	const rate = 128

	settings := testSettings(t)
	// one sample of slack keeps the workers in step with the phase
	settings.General.Streams.Buffer = 1.0 / rate

	trial := &trialSession{
		rate:    rate,
		markers: make(chanMarkers),
		phases:  make(chan model.Phase, 16),
	}

	var cls, erds counter

	err := Run(context.Background(), &Config{
		Settings:       settings,
		Model:          identityModel(),
		Session:        trial,
		Markers:        trial.markers,
		Classification: &cls,
		ERDS:           &erds,
		Observers: []processor.Observer{
			func(_ model.Marker, p model.Phase) { trial.phases <- p },
		},
	})
	require.NoError(t, err)

	// a worker lags by at most a couple of samples, so the edges of the
	// feedback period can shift between phases
	assert.Greater(t, cls.n, rate/2)
	assert.LessOrEqual(t, cls.n, rate+4)
	assert.Greater(t, erds.n, rate/2)
	assert.LessOrEqual(t, erds.n, rate+4)
}

func TestRunRejectsModelMismatch(t *testing.T) {
	mdl := &model.Model{
		SpatialFilter: mat.NewDense(2, 3, nil),
		Discriminant:  mat.NewDense(2, 3, nil),
	}

	err := Run(context.Background(), &Config{
		Settings: testSettings(t),
		Model:    mdl,
		Session:  ramp(10, 2),
		Markers:  noMarkers{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDimension)
}

func TestRunRejectsEmptyROI(t *testing.T) {
	settings := testSettings(t)
	settings.Model.ERDS.NumberROI = 3

	err := Run(context.Background(), &Config{
		Settings: settings,
		Model:    identityModel(),
		Session:  ramp(10, 2),
		Markers:  noMarkers{},
	})

	var empty *model.EmptyROIError
	require.True(t, errors.As(err, &empty), "got %v", err)
	assert.Equal(t, 3, empty.ROI)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	block := input.Session(blockingSession{})

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, &Config{
			Settings: testSettings(t),
			Model:    identityModel(),
			Session:  block,
			Markers:  noMarkers{},
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}

type blockingSession struct{}

func (blockingSession) Start(ctx context.Context, _ func(input.Sample) error) error {
	<-ctx.Done()
	return ctx.Err()
}
