// Command bridge samples three ADS1115 channels and publishes their voltages
// as comma-separated lines on a Bluetooth serial endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/btadc/pkg/acquire"
	"github.com/itohio/btadc/pkg/ads"
	"github.com/itohio/btadc/pkg/config"
	"github.com/itohio/btadc/pkg/diag"
	"github.com/itohio/btadc/pkg/link"
	"github.com/itohio/btadc/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

// run wires the bridge and blocks until it stops. Deferred cleanup runs
// before the exit code reaches main.
func run() int {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use a simulated converter instead of the I2C device")
		linkFlag   = flag.String("link", "", "Endpoint override: rfcomm, nus or stdout")
		debugFlag  = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	setupLogging(*debugFlag)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	if *mockFlag {
		cfg.ADC.Backend = "mock"
	}
	if *linkFlag != "" {
		cfg.Link.Kind = *linkFlag
	}

	log.Info().
		Str("Name", cfg.Device.Name).
		Str("ADC", cfg.ADC.Backend).
		Str("Link", cfg.Link.Kind).
		Str("Metrics", cfg.Metrics.Bind).
		Msg("Starting with the specified configuration")

	console, err := diag.Open(cfg.Console.Port, cfg.Console.Baud)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open diagnostic console")
		return 1
	}
	defer console.Close()

	adc := newConverter(cfg)
	if c, ok := adc.(io.Closer); ok {
		defer c.Close()
	}

	ep, err := newEndpoint(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create endpoint")
		return 1
	}
	if c, ok := ep.(io.Closer); ok {
		defer c.Close()
	}

	loop := acquire.New(adc, ep, console, acquire.Options{
		Name:         cfg.Device.Name,
		PollInterval: cfg.Loop.PollInterval,
		Precision:    cfg.Loop.Precision,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Bind != "" {
		serveMetrics(ctx, g, cfg, loop)
	}

	g.Go(func() error {
		return loop.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, acquire.ErrADCInit) {
			log.Error().Msg("Converter never started")
		} else {
			log.Error().Err(err).Msg("Bridge stopped")
		}
		return 1
	}

	log.Info().
		Uint64("Samples", loop.Stats().Snapshot().Samples).
		Msg("Bridge stopped")
	return 0
}

func setupLogging(debug bool) {
	zerolog.DurationFieldUnit = time.Second
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

func newConverter(cfg *config.Config) ads.Converter {
	switch cfg.ADC.Backend {
	case "mock":
		return ads.NewMock(&cfg.Mock)
	case "periph":
		return ads.NewADS1115(cfg.ADC.Bus, cfg.ADC.Address)
	}
	log.Warn().Str("Backend", cfg.ADC.Backend).Msg("Unknown converter backend, using periph")
	return ads.NewADS1115(cfg.ADC.Bus, cfg.ADC.Address)
}

func newEndpoint(cfg *config.Config) (link.Endpoint, error) {
	switch cfg.Link.Kind {
	case "rfcomm":
		return link.NewRFCOMM(cfg.Link.Port, cfg.Link.Baud, cfg.Link.Adapter), nil
	case "nus":
		return link.NewNUS(nil), nil
	case "stdout":
		return link.NewWriter(os.Stdout), nil
	}
	return nil, errors.New("unknown link kind " + cfg.Link.Kind)
}

func serveMetrics(ctx context.Context, g *errgroup.Group, cfg *config.Config, loop *acquire.Loop) {
	registry := prometheus.NewRegistry()
	metrics.RegisterCollector(cfg.Device.Name, func() acquire.StatsSnapshot {
		return loop.Stats().Snapshot()
	}, registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Metrics.Bind, Handler: mux}

	log.Info().
		Str("ListenAddress", cfg.Metrics.Bind).
		Msg("Starting Prometheus server")

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
