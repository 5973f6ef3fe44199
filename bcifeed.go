// Package bcifeed runs an online motor imagery feedback session: one sample
// stream and one marker stream in, a classification stream and an erds stream
// out.
package bcifeed

import (
	"context"
	"io"
	"os"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/noriah/bcifeed/config"
	"github.com/noriah/bcifeed/dsp"
	"github.com/noriah/bcifeed/graphic"
	"github.com/noriah/bcifeed/input"
	"github.com/noriah/bcifeed/input/markers"
	"github.com/noriah/bcifeed/model"
	"github.com/noriah/bcifeed/output"
	"github.com/noriah/bcifeed/output/wsock"
	"github.com/noriah/bcifeed/processor"
	"github.com/noriah/bcifeed/record"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var logger = logging.Logger("bcifeed")

// Config is a session to run.
type Config struct {
	Settings *config.Config

	// Model is loaded from Settings.Model.Dir when nil.
	Model *model.Model

	// RecordOnly runs the recorder without the feedback workers.
	RecordOnly bool

	// Session and Markers replace the configured streams when set.
	Session input.Session
	Markers input.MarkerSource

	// Classification and ERDS receive the output streams in addition to the
	// configured sinks.
	Classification output.Output
	ERDS           output.Output

	// Observers are told about every phase change the session applies.
	Observers []processor.Observer
}

type consumer struct {
	name string
	run  func(context.Context, input.SampleSource) error
	sub  *input.Subscription
}

type session struct {
	cfg      *Config
	settings *config.Config
	layout   model.Layout

	state *processor.Session
	sm    *processor.StateMachine
	hub   *input.Hub

	consumers []consumer
	closers   []func() error
	starters  []func(context.Context) error

	monitor *graphic.Monitor
}

// Run runs the session until the sample stream ends or ctx is done.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.Settings == nil {
		return errors.New("no settings")
	}

	if err := cfg.Settings.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	s := &session{
		cfg:      cfg,
		settings: cfg.Settings,
		state:    processor.NewSession(),
	}

	defer s.close()

	if err := s.setup(ctx); err != nil {
		return err
	}

	return s.run(ctx)
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warnw("cleanup failed", "err", err)
		}
	}
}

func (s *session) setup(ctx context.Context) error {
	var err error

	if s.layout, err = s.settings.Layout(); err != nil {
		return errors.Wrap(err, "channel table")
	}

	if !s.cfg.RecordOnly {
		if err = s.layout.ROIs.Validate(len(s.layout.Selection)); err != nil {
			return errors.Wrap(err, "erds rois")
		}
	}

	rate := s.settings.EEG.SampleRate

	s.sm = processor.NewStateMachine(s.state, s.settings.General.Startup())
	for _, fn := range s.cfg.Observers {
		s.sm.Observe(fn)
	}
	s.hub = input.NewHub(s.settings.Samples(s.settings.General.Streams.Buffer))

	if s.settings.General.Recording.Path != "" {
		if err = s.setupRecorder(); err != nil {
			return err
		}
	} else if s.cfg.RecordOnly {
		return errors.New("record only session without a recording path")
	}

	if !s.cfg.RecordOnly {
		if err = s.setupWorkers(); err != nil {
			return err
		}
	}

	logger.Infow("session ready",
		"rate", rate,
		"advertised", len(s.settings.EEG.Channels),
		"enabled", len(s.layout.Selection),
		"rois", len(s.layout.ROIs),
		"consumers", len(s.consumers))

	return nil
}

func (s *session) setupRecorder() error {
	rs := s.settings.General.Recording

	f, err := os.Create(rs.Path)
	if err != nil {
		return errors.Wrap(err, "failed to create recording")
	}

	s.closers = append(s.closers, f.Close)

	labels := make([]string, len(s.settings.EEG.Channels))
	for i, ch := range s.settings.EEG.Channels {
		labels[i] = ch.Name
	}

	rec, err := record.New(f, record.Config{
		Channels:    len(s.settings.EEG.Channels),
		SampleRate:  s.settings.EEG.SampleRate,
		PhysicalMin: rs.PhysicalMin,
		PhysicalMax: rs.PhysicalMax,
		Dimension:   rs.Dimension,
		Labels:      labels,
		PatientID:   rs.PatientID,
	})
	if err != nil {
		return err
	}

	s.closers = append(s.closers, rec.Close)
	s.sm.Observe(rec.Mark)

	s.consumers = append(s.consumers, consumer{
		name: "record",
		run:  rec.Run,
		sub:  s.hub.Subscribe(),
	})

	logger.Infow("recording", "path", rs.Path)

	return nil
}

func (s *session) outputs() (output.Output, output.Output) {
	var lda, erds []output.Output

	st := s.settings.General.Streams

	if st.Listen != "" {
		srv := wsock.New(st.Listen)
		lda = append(lda, srv.Stream(st.FeedbackLDA.Name))
		erds = append(erds, srv.Stream(st.FeedbackERDS.Name))
		s.starters = append(s.starters, srv.Run)
	}

	if s.settings.General.Monitor {
		s.monitor = graphic.NewMonitor(graphic.Config{
			ROIs:       len(s.layout.ROIs),
			SampleRate: s.settings.EEG.SampleRate,
		})
		s.sm.Observe(s.monitor.Observe)

		lda = append(lda, s.monitor.Classification())
		erds = append(erds, s.monitor.ERDS())
	}

	if st.Print {
		if s.monitor != nil {
			logger.Warn("print is disabled while the monitor owns the terminal")
		} else {
			lda = append(lda, output.NewLines(os.Stdout, st.FeedbackLDA.Name))
			erds = append(erds, output.NewLines(os.Stdout, st.FeedbackERDS.Name))
		}
	}

	lda = append(lda, s.cfg.Classification)
	erds = append(erds, s.cfg.ERDS)

	return output.Multi(lda...), output.Multi(erds...)
}

func (s *session) setupWorkers() error {
	var (
		ms      = s.settings.Model
		rate    = s.settings.EEG.SampleRate
		enabled = len(s.layout.Selection)
	)

	mdl := s.cfg.Model
	if mdl == nil {
		var err error
		if mdl, err = model.LoadModel(ms.Dir); err != nil {
			return errors.Wrap(err, "failed to load model")
		}
	}

	sections, err := dsp.DesignBandpass(ms.Bandpass.Order, ms.Bandpass.Low(), ms.Bandpass.High(), rate)
	if err != nil {
		return errors.Wrap(err, "classification bandpass")
	}

	cls, err := processor.NewClassifier(processor.ClassifierConfig{
		Model:    mdl,
		Filter:   dsp.NewBandpass(sections, enabled),
		Channels: enabled,
		Window:   s.settings.Samples(ms.LogBandPower.Window),
		Votes:    int(rate),
	})
	if err != nil {
		return errors.Wrap(err, "classifier")
	}

	sections, err = dsp.DesignBandpass(ms.BandpassERDS.Order, ms.BandpassERDS.Low(), ms.BandpassERDS.High(), rate)
	if err != nil {
		return errors.Wrap(err, "erds bandpass")
	}

	erds := processor.NewERDS(dsp.NewBandpass(sections, enabled), enabled,
		s.settings.Samples(ms.ERDS.Warmup), s.layout.ROIs)

	ldaOut, erdsOut := s.outputs()

	clsWorker := processor.NewClassificationWorker(processor.Config{
		Session:   s.state,
		Selection: s.layout.Selection,
		Output:    ldaOut,
	}, cls)

	erdsWorker := processor.NewERDSWorker(processor.Config{
		Session:   s.state,
		Selection: s.layout.Selection,
		Output:    erdsOut,
	}, erds)

	s.consumers = append(s.consumers,
		consumer{name: "classification", run: clsWorker.Run, sub: s.hub.Subscribe()},
		consumer{name: "erds", run: erdsWorker.Run, sub: s.hub.Subscribe()},
	)

	return nil
}

func (s *session) openStreams(ctx context.Context) (input.Session, input.MarkerSource, error) {
	st := s.settings.General.Streams

	src := s.cfg.Markers
	if src == nil {
		rd, err := markers.Open(ctx, st.Marker.Source)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, rd.Close)
		src = rd
	}

	if s.cfg.Session != nil {
		return s.cfg.Session, src, nil
	}

	name := st.EEG.Backend
	if name == "" {
		name = input.DefaultBackend()
	}

	backend, err := input.InitBackend(name)
	if err != nil {
		return nil, nil, err
	}

	s.closers = append(s.closers, backend.Close)

	sessCfg := input.SessionConfig{
		FrameSize:  len(s.settings.EEG.Channels),
		SampleRate: s.settings.EEG.SampleRate,
	}

	if sessCfg.Device, err = input.GetDevice(backend, st.EEG.Device); err != nil {
		return nil, nil, err
	}

	sess, err := backend.Start(sessCfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to start the input backend")
	}

	logger.Infow("sample stream", "backend", name, "device", sessCfg.Device)

	return sess, src, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, src, err := s.openStreams(ctx)
	if err != nil {
		return err
	}

	if s.monitor != nil {
		if err = s.monitor.Init(); err != nil {
			return err
		}
		defer s.monitor.Close()

		ctx = s.monitor.Start(ctx)
		s.starters = append(s.starters, s.monitor.Run)
	}

	for _, start := range s.starters {
		start := start
		go func() {
			if err := ignoreCanceled(start(ctx)); err != nil {
				logger.Errorw("output stopped", "err", err)
			}
		}()
	}

	// Backends blocked in a read cannot always be interrupted, so the hub
	// is only joined when the stream ended by itself.
	hubErr := make(chan error, 1)
	go func() {
		hubErr <- s.hub.Run(ctx, sess)
	}()

	g, gctx := errgroup.WithContext(ctx)
	markerCtx, stopMarkers := context.WithCancel(gctx)
	defer stopMarkers()

	var consumers sync.WaitGroup

	for _, c := range s.consumers {
		c := c
		consumers.Add(1)

		g.Go(func() error {
			defer consumers.Done()

			err := ignoreCanceled(c.run(gctx, c.sub))
			logger.Debugw("consumer stopped", "name", c.name, "err", err)

			return errors.Wrap(err, c.name)
		})
	}

	g.Go(func() error {
		err := ignoreCanceled(s.sm.Run(markerCtx, src))
		return errors.Wrap(err, "markers")
	})

	go func() {
		consumers.Wait()
		stopMarkers()
	}()

	err = g.Wait()

	// consumers only finish cleanly on their own once the hub has closed
	// their subscriptions
	if err == nil && ctx.Err() == nil {
		if herr := ignoreCanceled(<-hubErr); herr != nil && !errors.Is(herr, io.EOF) {
			err = errors.Wrap(herr, "sample stream")
		}
	}

	logger.Infow("session finished", "phase", s.state.Phase.Load(), "err", err)

	return err
}
