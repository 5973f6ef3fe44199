package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/noriah/bcifeed"
	"github.com/noriah/bcifeed/calibrate"
	"github.com/noriah/bcifeed/config"
	"github.com/noriah/bcifeed/input"

	_ "github.com/noriah/bcifeed/input/all"

	"github.com/integrii/flaggy"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

// AppName is the app name
const AppName = "bcifeed"

// AppDesc is the app description
const AppDesc = "Online motor imagery feedback with CSP/LDA classification and ERDS"

var version = "unknown"

var logger = logging.Logger("main")

func main() {
	log.SetFlags(0)

	f := newFlags()

	parser := flaggy.NewParser(AppName)
	parser.Description = AppDesc
	parser.Version = version

	parser.String(&f.configPath, "c", "config", "configuration file (yaml or json)")
	parser.String(&f.logLevel, "l", "log-level", "log level (debug, info, warn, error)")
	parser.String(&f.backend, "b", "backend", "sample backend name")
	parser.String(&f.device, "d", "device", "sample device name")
	parser.Float64(&f.sampleRate, "r", "rate", "sample rate")
	parser.String(&f.markers, "m", "markers", "marker source: '-', a path or exec:<command>")
	parser.String(&f.modelDir, "md", "model-dir", "directory holding csp.bin and lda.bin")

	runCmd := flaggy.NewSubcommand("run")
	runCmd.Description = "run a feedback session (default)"
	runCmd.String(&f.listen, "w", "listen", "websocket listen address")
	runCmd.Bool(&f.print, "p", "print", "print both output streams to stdout")
	runCmd.Bool(&f.monitor, "t", "monitor", "draw the terminal monitor")
	runCmd.String(&f.output, "o", "record", "also record the session to this edf file")
	parser.AttachSubcommand(runCmd, 1)

	recordCmd := flaggy.NewSubcommand("record")
	recordCmd.ShortName = "rec"
	recordCmd.Description = "record a labelled session to edf without feedback"
	recordCmd.AddPositionalValue(&f.output, "output", 1, true, "edf file to write")
	parser.AttachSubcommand(recordCmd, 1)

	calibrateCmd := flaggy.NewSubcommand("calibrate")
	calibrateCmd.ShortName = "cal"
	calibrateCmd.Description = "fit the spatial filter and discriminant from a recording"
	calibrateCmd.AddPositionalValue(&f.input, "input", 1, true, "edf recording")
	parser.AttachSubcommand(calibrateCmd, 1)

	listBackendsCmd := flaggy.NewSubcommand("list-backends")
	listBackendsCmd.ShortName = "lb"
	listBackendsCmd.Description = "list all supported backends"
	parser.AttachSubcommand(listBackendsCmd, 1)

	listDevicesCmd := flaggy.NewSubcommand("list-devices")
	listDevicesCmd.ShortName = "ld"
	listDevicesCmd.Description = "list all devices for a backend"
	parser.AttachSubcommand(listDevicesCmd, 1)

	chk(parser.Parse(), "failed to parse arguments")
	chk(logging.SetLogLevel("*", f.logLevel), "bad log level")

	switch {
	case listBackendsCmd.Used:
		def := input.DefaultBackend()
		for _, backend := range input.Backends {
			star := ' '
			if backend.Name == def {
				star = '*'
			}
			fmt.Printf("- %s %c\n", backend.Name, star)
		}
		return

	case listDevicesCmd.Used:
		chk(listDevices(f.backend), "failed to list devices")
		return
	}

	settings, err := f.settings()
	chk(err, "invalid config")

	if calibrateCmd.Used {
		chk(runCalibrate(settings, f.input), "calibration failed")
		return
	}

	// Root Context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	chk(bcifeed.Run(ctx, &bcifeed.Config{
		Settings:   settings,
		RecordOnly: recordCmd.Used,
	}), "session failed")
}

func listDevices(name string) error {
	if name == "" {
		name = input.DefaultBackend()
	}

	backend, err := input.InitBackend(name)
	if err != nil {
		return err
	}
	defer backend.Close()

	devices, err := backend.Devices()
	if err != nil {
		return errors.Wrap(err, "failed to get devices")
	}

	// We don't really need the default device to be indicated.
	defaultDevice, _ := backend.DefaultDevice()

	fmt.Printf("all devices for %q backend. '*' marks default\n", name)

	for idx := range devices {
		star := ' '
		if defaultDevice != nil && devices[idx].String() == defaultDevice.String() {
			star = '*'
		}

		fmt.Printf("- %v %c\n", devices[idx], star)
	}

	return nil
}

func runCalibrate(settings *config.Config, path string) error {
	lay, err := settings.Layout()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open recording")
	}
	defer f.Close()

	ds, err := calibrate.ReadEDF(f)
	if err != nil {
		return err
	}

	if ds.Channels() != len(settings.EEG.Channels) {
		return errors.Errorf("recording has %d channels, config lists %d",
			ds.Channels(), len(settings.EEG.Channels))
	}

	ms := settings.Model
	tm := settings.General.Timing

	res, err := calibrate.Fit(calibrate.Config{
		SampleRate:   settings.EEG.SampleRate,
		Selection:    lay.Selection,
		Order:        ms.Bandpass.OrderOffline,
		Low:          ms.Bandpass.Low(),
		High:         ms.Bandpass.High(),
		CueOffset:    tm.DurationCue,
		TaskDuration: tm.DurationTask,
		FeatureDelay: tm.FeatureDelay,
		Window:       ms.LogBandPower.Window,
		Filters:      ms.CSP.Filters,
	}, ds)
	if err != nil {
		return err
	}

	if err = res.Model.Save(ms.Dir); err != nil {
		return err
	}

	logger.Infow("model saved", "dir", ms.Dir, "accuracy", res.Accuracy,
		"left", res.Trials[0], "right", res.Trials[1])

	fmt.Printf("training accuracy %.1f%% over %d trials, model written to %s\n",
		100*res.Accuracy, res.Trials[0]+res.Trials[1], ms.Dir)

	return nil
}

func chk(err error, wrap string) {
	if err != nil {
		log.Fatalln(wrap+": ", err)
	}
}
