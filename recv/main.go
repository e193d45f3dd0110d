// Command recv collects samples from the bridge over a serial port and
// writes them as CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/btadc/pkg/ads"
	"github.com/itohio/btadc/pkg/config"
	"github.com/itohio/btadc/pkg/receiver"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM5 or /dev/rfcomm0); empty probes all ports")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use an in-process simulated bridge instead of a serial port")
		samplesFlag  = flag.Int("n", 0, "Number of samples to collect (overrides config)")
		durationFlag = flag.Duration("duration", 0, "Recording length, e.g. 10s; sets the sample count from the bridge data rate (overrides -n)")
		outputFlag   = flag.String("o", "", "Output CSV file (default stdout)")
		channelsFlag = flag.String("channels", "", "Enabled channels as three 0/1 digits, e.g. 101 (overrides config)")
		averageFlag  = flag.Int("average", 0, "Sliding average window in samples (overrides config)")
		debugFlag    = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	setupLogging(*debugFlag)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *portFlag != "" {
		cfg.Receiver.Port = *portFlag
	}
	if *samplesFlag > 0 {
		cfg.Receiver.Samples = *samplesFlag
	}
	if n := receiver.SampleCount(*durationFlag, ads.DefaultDataRate); n > 0 {
		cfg.Receiver.Samples = n
	}
	if *averageFlag > 0 {
		cfg.Receiver.Average = *averageFlag
	}

	enabled := channelMask(cfg.Receiver.Channels)
	if *channelsFlag != "" {
		enabled, err = parseChannels(*channelsFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid channel selection")
		}
	}

	dev, err := openDevice(cfg, *mockFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to connect to device")
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("Samples", cfg.Receiver.Samples).
		Int("Average", cfg.Receiver.Average).
		Msg("Collecting data")

	samples := receiver.Average(dev.Samples(), cfg.Receiver.Average, 0)
	rec, err := receiver.Collect(ctx, samples, cfg.Receiver.Samples, enabled)
	if err != nil {
		if rec == nil || rec.Len() == 0 {
			log.Fatal().Err(err).Msg("No samples collected")
		}
		log.Warn().Err(err).Int("Samples", rec.Len()).Msg("Collection ended early, writing partial recording")
	}

	var out io.Writer = os.Stdout
	if *outputFlag != "" {
		f, err := os.Create(*outputFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create output file")
		}
		defer f.Close()
		out = f
	}

	if err := rec.WriteCSV(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to write recording")
	}
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
	})

	if debug || os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// openDevice connects to the configured port, discovering it when none is set.
func openDevice(cfg *config.Config, mock bool) (receiver.Device, error) {
	if mock {
		dev := receiver.NewMock(&cfg.Mock)
		return dev, dev.Connect()
	}

	port := cfg.Receiver.Port
	if port == "" {
		log.Info().Msg("Connecting to device, please wait")
		prober := receiver.NewProber(cfg.Receiver.Baud, cfg.Receiver.ProbeTimeout)
		var err error
		port, err = prober.Discover(nil)
		if err != nil {
			return nil, err
		}
	}

	dev := receiver.New(port, cfg.Receiver.Baud, 0)
	if err := dev.Connect(); err != nil {
		return nil, err
	}
	log.Info().Str("Port", port).Msg("Connected to device")
	return dev, nil
}

func channelMask(channels []bool) [3]bool {
	var mask [3]bool
	copy(mask[:], channels)
	return mask
}

// parseChannels parses a mask such as "101" into per-channel flags.
func parseChannels(s string) ([3]bool, error) {
	var mask [3]bool
	if len(s) != 3 {
		return mask, fmt.Errorf("expected 3 digits, got %d", len(s))
	}
	for i := 0; i < 3; i++ {
		switch s[i] {
		case '1':
			mask[i] = true
		case '0':
		default:
			return mask, errors.New("digits must be 0 or 1")
		}
	}
	return mask, nil
}
