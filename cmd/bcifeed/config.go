package main

import (
	"github.com/noriah/bcifeed/config"
)

// flags holds the command line values. Zero values leave the file alone.
type flags struct {
	configPath string
	logLevel   string

	backend    string
	device     string
	sampleRate float64
	markers    string
	listen     string
	modelDir   string
	print      bool
	monitor    bool

	// record
	output string

	// calibrate
	input string
}

func newFlags() flags {
	return flags{
		logLevel: "info",
	}
}

// settings loads the configuration file, or the defaults without one, and
// applies the flag overrides.
func (f *flags) settings() (*config.Config, error) {
	cfg := config.Default()

	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}

	st := &cfg.General.Streams

	if f.backend != "" {
		st.EEG.Backend = f.backend
	}

	if f.device != "" {
		st.EEG.Device = f.device
	}

	if f.sampleRate > 0 {
		cfg.EEG.SampleRate = f.sampleRate
	}

	if f.markers != "" {
		st.Marker.Source = f.markers
	}

	if f.listen != "" {
		st.Listen = f.listen
	}

	if f.modelDir != "" {
		cfg.Model.Dir = f.modelDir
	}

	if f.output != "" {
		cfg.General.Recording.Path = f.output
	}

	st.Print = st.Print || f.print
	cfg.General.Monitor = cfg.General.Monitor || f.monitor

	return cfg, cfg.Validate()
}
