// Package graphic draws a live feedback monitor on the terminal.
package graphic

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/noriah/bcifeed/model"
	"github.com/noriah/bcifeed/output"
	"github.com/noriah/bcifeed/util"
	"github.com/nsf/termbox-go"
	"github.com/pkg/errors"
)

var logger = logging.Logger("graphic")

// Monitor defaults
const (
	DefaultFrameRate = 30
	DefaultSmoothing = 250 * time.Millisecond
)

// Config configures a Monitor.
type Config struct {
	ROIs       int
	SampleRate float64
	FrameRate  int           // redraws per second
	Smoothing  time.Duration // erds moving average length
}

// Monitor keeps the latest state of a session and draws it. The data side
// (Observe and the two writers) is safe to use without a terminal.
type Monitor struct {
	cfg Config

	mu       sync.Mutex
	phase    model.Phase
	marker   model.Marker
	trial    int
	label    int
	distance float64
	classOK  bool
	erds     []float64
	windows  []*util.MovingWindow

	restore func()
}

// NewMonitor returns a monitor for cfg.ROIs erds regions.
func NewMonitor(cfg Config) *Monitor {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}

	if cfg.Smoothing <= 0 {
		cfg.Smoothing = DefaultSmoothing
	}

	size := int(cfg.Smoothing.Seconds() * cfg.SampleRate)

	m := &Monitor{
		cfg:     cfg,
		label:   -1,
		erds:    make([]float64, cfg.ROIs),
		windows: make([]*util.MovingWindow, cfg.ROIs),
	}

	for i := range m.windows {
		m.windows[i] = util.NewMovingWindow(size)
	}

	return m
}

// Observe records a marker and the phase it led to. It has the shape of a
// processor.Observer.
func (m *Monitor) Observe(mk model.Marker, phase model.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = phase
	m.marker = mk

	switch kind := mk.Kind(); kind {
	case model.MarkerTrialLeft, model.MarkerTrialRight:
		m.trial = kind.Label()

	case model.MarkerEndOfTrial:
		m.classOK = false
		m.label = -1
		m.distance = 0

		for i, w := range m.windows {
			w.Reset()
			m.erds[i] = 0
		}
	}
}

type writerFunc func([]float32) error

func (fn writerFunc) Write(v []float32) error {
	return fn(v)
}

// Classification returns the writer for the [label, distance] stream.
func (m *Monitor) Classification() output.Output {
	return writerFunc(m.writeClassification)
}

// ERDS returns the writer for the per-roi erds stream.
func (m *Monitor) ERDS() output.Output {
	return writerFunc(m.writeERDS)
}

func (m *Monitor) writeClassification(v []float32) error {
	if len(v) != 2 {
		return errors.Errorf("classification: want 2 values, got %d", len(v))
	}

	m.mu.Lock()
	m.label = int(v[0])
	m.distance = float64(v[1])
	m.classOK = true
	m.mu.Unlock()

	return nil
}

func (m *Monitor) writeERDS(v []float32) error {
	if len(v) != len(m.erds) {
		return errors.Errorf("erds: want %d values, got %d", len(m.erds), len(v))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			continue
		}
		m.erds[i], _ = m.windows[i].Update(float64(x))
	}

	return nil
}

type state struct {
	phase    model.Phase
	marker   model.Marker
	trial    int
	label    int
	distance float64
	classOK  bool
	erds     []float64
}

func (m *Monitor) snapshot(dst *state) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst.phase = m.phase
	dst.marker = m.marker
	dst.trial = m.trial
	dst.label = m.label
	dst.distance = m.distance
	dst.classOK = m.classOK
	dst.erds = append(dst.erds[:0], m.erds...)
}

// Init sets up the terminal.
func (m *Monitor) Init() error {
	restore, err := normalizeTerminal()
	if err != nil {
		return errors.Wrap(err, "terminal")
	}

	if err = termbox.Init(); err != nil {
		restore()
		return errors.Wrap(err, "termbox init")
	}

	m.restore = restore

	termbox.HideCursor()
	termbox.SetOutputMode(termbox.Output256)

	return nil
}

// Close restores the terminal.
func (m *Monitor) Close() error {
	termbox.Close()

	if m.restore != nil {
		m.restore()
		m.restore = nil
	}

	return nil
}

// Start polls terminal events. The returned context is cancelled when the
// user quits or ctx is done.
func (m *Monitor) Start(ctx context.Context) context.Context {
	var dispCtx, dispCancel = context.WithCancel(ctx)

	go func() {
		<-dispCtx.Done()
		termbox.Interrupt()
	}()

	go eventPoller(dispCtx, dispCancel)

	return dispCtx
}

// eventPoller will take events and do things with them
func eventPoller(ctx context.Context, fn context.CancelFunc) {
	defer fn()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var ev = termbox.PollEvent()

		switch ev.Type {
		case termbox.EventKey:
			switch ev.Key {
			case termbox.KeyCtrlC, termbox.KeyEsc:
				return

			default:
				switch ev.Ch {
				case 'q', 'Q':
					return
				}
			}

		case termbox.EventError:
			logger.Errorw("terminal event", "err", ev.Err)
			return

		case termbox.EventInterrupt:
			return

		default:

		}
	}
}

// Run redraws the monitor at the configured frame rate until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(m.cfg.FrameRate))
	defer ticker.Stop()

	var st state

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
		}

		m.snapshot(&st)

		if err := draw(&st); err != nil {
			return errors.Wrap(err, "draw")
		}
	}
}

func trialName(label int) string {
	switch label {
	case model.LabelLeft:
		return "left"
	case model.LabelRight:
		return "right"
	}
	return "-"
}

func (st *state) header() string {
	return fmt.Sprintf("phase %-9s  marker %-16s  t %8.3f  trial %s",
		st.phase, st.marker.Value, st.marker.Time, trialName(st.trial))
}
