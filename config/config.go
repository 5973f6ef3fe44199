// Package config loads the session configuration file.
package config

import (
	"os"
	"time"

	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the whole configuration file.
type Config struct {
	EEG     EEGSettings     `yaml:"eeg-settings"`
	Model   ModelSettings   `yaml:"feedback-model-settings"`
	General GeneralSettings `yaml:"general-settings"`
}

// EEGSettings describes the sample stream.
type EEGSettings struct {
	SampleRate float64      `yaml:"sample-rate"`
	Channels   ChannelTable `yaml:"channels"`
}

// Bandpass is a filter band. The passband edges are in Hz.
type Bandpass struct {
	Order        int       `yaml:"order"`
	OrderOffline int       `yaml:"order-offline"`
	FPass        []float64 `yaml:"fpass"`
	// FStop is accepted for compatibility. Butterworth designs only use FPass.
	FStop []float64 `yaml:"fstop"`
}

// Low returns the lower passband edge.
func (bp Bandpass) Low() float64 {
	return bp.FPass[0]
}

// High returns the upper passband edge.
func (bp Bandpass) High() float64 {
	return bp.FPass[1]
}

// ERDSSettings selects how erds values are grouped.
type ERDSSettings struct {
	Mode               model.ERDSMode `yaml:"mode"`
	NumberROI          int            `yaml:"number-roi"`
	SingleModeChannels []int          `yaml:"single-mode-channels"`
	// Warmup is how much of each reference period is skipped, in seconds.
	Warmup float64 `yaml:"warmup"`
}

// LogBandPower configures the power smoothing window.
type LogBandPower struct {
	Window float64 `yaml:"window"` // seconds
}

// CSP configures the spatial filter fit.
type CSP struct {
	Filters int `yaml:"filters"` // patterns kept per class
}

// ModelSettings configures both signal paths and the model fit.
type ModelSettings struct {
	Bandpass     Bandpass     `yaml:"bandpass"`
	BandpassERDS Bandpass     `yaml:"bandpass-erds"`
	ERDS         ERDSSettings `yaml:"erds"`
	LogBandPower LogBandPower `yaml:"log-band-power"`
	CSP          CSP          `yaml:"csp"`
	// Dir holds csp.bin and lda.bin.
	Dir string `yaml:"model-dir"`
}

// Timing describes the trial layout, in seconds from the cue.
type Timing struct {
	DurationCue  float64 `yaml:"duration-cue"`
	DurationTask float64 `yaml:"duration-task"`
	FeatureDelay float64 `yaml:"feature-delay"`
}

// SampleStream selects the sample backend.
type SampleStream struct {
	Backend string `yaml:"backend"`
	Device  string `yaml:"device"`
}

// MarkerStream selects the marker source: "-" for stdin, "exec:<command>"
// or a file path.
type MarkerStream struct {
	Source string `yaml:"source"`
}

// OutputStream names an output stream.
type OutputStream struct {
	Name string `yaml:"name"`
}

// Streams configures every stream of a session.
type Streams struct {
	EEG          SampleStream `yaml:"eeg"`
	Marker       MarkerStream `yaml:"marker"`
	FeedbackLDA  OutputStream `yaml:"fb-lda"`
	FeedbackERDS OutputStream `yaml:"fb-erds"`

	// Listen is the websocket address. Empty disables the server.
	Listen string `yaml:"listen"`
	// Print writes both output streams to stdout.
	Print bool `yaml:"print"`
	// Buffer is how many seconds of samples each consumer may lag.
	Buffer float64 `yaml:"buffer"`
}

// Recording configures the session recorder.
type Recording struct {
	Path        string  `yaml:"path"`
	PhysicalMin float64 `yaml:"physical-min"`
	PhysicalMax float64 `yaml:"physical-max"`
	Dimension   string  `yaml:"dimension"`
	PatientID   string  `yaml:"patient-id"`
}

// GeneralSettings holds everything not tied to the signal model.
type GeneralSettings struct {
	Timing         Timing    `yaml:"timing"`
	Streams        Streams   `yaml:"lsl-streams"`
	StartupTimeout float64   `yaml:"startup-timeout"` // seconds
	Monitor        bool      `yaml:"monitor"`
	Recording      Recording `yaml:"recording"`
}

// Defaults
const (
	DefaultSampleRate   = 250
	DefaultOrder        = 8
	DefaultOrderOffline = 4
	DefaultWindow       = 1.0
	DefaultWarmup       = 0.5
	DefaultFilters      = 2
	DefaultDurationCue  = 0.5
	DefaultDurationTask = 4.0
	DefaultFeatureDelay = 3.0
	DefaultBuffer       = 10.0
	DefaultStartup      = 3.0
	DefaultModelDir     = "model"
	DefaultMarkers      = "-"
	DefaultLDAStream    = "classification"
	DefaultERDSStream   = "erds"
)

// Default returns a two channel configuration with one roi per hemisphere.
func Default() *Config {
	cfg := &Config{}

	cfg.EEG.SampleRate = DefaultSampleRate
	cfg.EEG.Channels = ChannelTable{
		{Name: "C3", ID: 1, ROI: 1, Enabled: true},
		{Name: "C4", ID: 2, ROI: 2, Enabled: true},
	}

	cfg.Model.Bandpass.FPass = []float64{8, 30}
	cfg.Model.BandpassERDS.FPass = []float64{8, 12}
	cfg.Model.ERDS.Mode = model.ERDSAverage
	cfg.Model.ERDS.NumberROI = 2

	applyDefaults(cfg)

	return cfg
}

// Load reads a YAML or JSON configuration file. Unset values take their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config read")
	}

	return Parse(data)
}

// Parse decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "config yaml")
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.EEG.SampleRate == 0 {
		cfg.EEG.SampleRate = DefaultSampleRate
	}

	ms := &cfg.Model

	if ms.Bandpass.Order == 0 {
		ms.Bandpass.Order = DefaultOrder
	}

	if ms.Bandpass.OrderOffline == 0 {
		ms.Bandpass.OrderOffline = DefaultOrderOffline
	}

	if ms.BandpassERDS.Order == 0 {
		ms.BandpassERDS.Order = ms.Bandpass.Order
	}

	if ms.ERDS.Mode == "" {
		ms.ERDS.Mode = model.ERDSAverage
	}

	if ms.ERDS.Warmup == 0 {
		ms.ERDS.Warmup = DefaultWarmup
	}

	if ms.LogBandPower.Window == 0 {
		ms.LogBandPower.Window = DefaultWindow
	}

	if ms.CSP.Filters == 0 {
		ms.CSP.Filters = DefaultFilters
	}

	if ms.Dir == "" {
		ms.Dir = DefaultModelDir
	}

	gs := &cfg.General

	if gs.Timing.DurationCue == 0 {
		gs.Timing.DurationCue = DefaultDurationCue
	}

	if gs.Timing.DurationTask == 0 {
		gs.Timing.DurationTask = DefaultDurationTask
	}

	if gs.Timing.FeatureDelay == 0 {
		gs.Timing.FeatureDelay = DefaultFeatureDelay
	}

	if gs.StartupTimeout == 0 {
		gs.StartupTimeout = DefaultStartup
	}

	st := &gs.Streams

	if st.Marker.Source == "" {
		st.Marker.Source = DefaultMarkers
	}

	if st.FeedbackLDA.Name == "" {
		st.FeedbackLDA.Name = DefaultLDAStream
	}

	if st.FeedbackERDS.Name == "" {
		st.FeedbackERDS.Name = DefaultERDSStream
	}

	if st.Buffer == 0 {
		st.Buffer = DefaultBuffer
	}
}

func checkBand(name string, bp Bandpass, order int, nyquist float64) error {
	if order < 2 || order%2 != 0 {
		return errors.Errorf("%s: order %d must be even and at least 2", name, order)
	}

	if len(bp.FPass) != 2 {
		return errors.Errorf("%s: fpass needs two edges, got %d", name, len(bp.FPass))
	}

	if lo, hi := bp.Low(), bp.High(); lo <= 0 || hi <= lo || hi >= nyquist {
		return errors.Errorf("%s: passband [%g, %g] outside (0, %g)", name, lo, hi, nyquist)
	}

	return nil
}

// Validate checks the configuration for values the session cannot run with.
func (cfg *Config) Validate() error {
	if cfg.EEG.SampleRate <= 0 {
		return errors.Errorf("sample rate %g must be positive", cfg.EEG.SampleRate)
	}

	if len(cfg.EEG.Channels) == 0 {
		return errors.New("no channels configured")
	}

	nyquist := cfg.EEG.SampleRate / 2
	ms := cfg.Model

	if err := checkBand("bandpass", ms.Bandpass, ms.Bandpass.Order, nyquist); err != nil {
		return err
	}

	if ms.Bandpass.OrderOffline < 1 {
		return errors.Errorf("bandpass: offline order %d must be positive", ms.Bandpass.OrderOffline)
	}

	if err := checkBand("bandpass-erds", ms.BandpassERDS, ms.BandpassERDS.Order, nyquist); err != nil {
		return err
	}

	switch ms.ERDS.Mode {
	case model.ERDSAverage:
		if ms.ERDS.NumberROI < 1 {
			return errors.Errorf("erds: number-roi %d must be positive", ms.ERDS.NumberROI)
		}

	case model.ERDSSingle:
		if len(ms.ERDS.SingleModeChannels) == 0 {
			return errors.New("erds: single mode needs single-mode-channels")
		}

	default:
		return errors.Errorf("erds: unknown mode %q", ms.ERDS.Mode)
	}

	if ms.ERDS.Warmup < 0 {
		return errors.Errorf("erds: negative warmup %g", ms.ERDS.Warmup)
	}

	if ms.LogBandPower.Window*cfg.EEG.SampleRate < 1 {
		return errors.Errorf("log-band-power: window %gs is shorter than one sample", ms.LogBandPower.Window)
	}

	if ms.CSP.Filters < 1 {
		return errors.Errorf("csp: filters %d must be positive", ms.CSP.Filters)
	}

	tm := cfg.General.Timing
	if tm.DurationCue < 0 || tm.DurationTask <= 0 || tm.FeatureDelay < 0 {
		return errors.New("timing: durations must be positive")
	}

	if cfg.General.StartupTimeout < 0 {
		return errors.Errorf("startup-timeout %gs must not be negative", cfg.General.StartupTimeout)
	}

	st := cfg.General.Streams
	if st.Marker.Source == "-" && st.EEG.Backend == "stdin" {
		return errors.New("streams: samples and markers cannot both read stdin")
	}

	if st.FeedbackLDA.Name == st.FeedbackERDS.Name {
		return errors.Errorf("streams: output streams share the name %q", st.FeedbackLDA.Name)
	}

	if st.Buffer <= 0 {
		return errors.Errorf("streams: buffer %gs must be positive", st.Buffer)
	}

	return nil
}

// Startup returns the startup timeout.
func (gs GeneralSettings) Startup() time.Duration {
	return time.Duration(gs.StartupTimeout * float64(time.Second))
}

// Layout maps the channel table to the enabled selection and the rois.
func (cfg *Config) Layout() (model.Layout, error) {
	erds := cfg.Model.ERDS
	return model.Map(cfg.EEG.Channels.Channels(), erds.Mode, erds.NumberROI, erds.SingleModeChannels)
}

// Samples converts seconds to a whole number of samples.
func (cfg *Config) Samples(seconds float64) int {
	return int(seconds * cfg.EEG.SampleRate)
}
