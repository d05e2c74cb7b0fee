package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kisy/netan/config"
	"github.com/kisy/netan/pkg/directory"
	"github.com/kisy/netan/pkg/geo"
	"github.com/kisy/netan/pkg/logging"
	"github.com/kisy/netan/pkg/metrics"
	"github.com/kisy/netan/pkg/model"
	"github.com/kisy/netan/pkg/report"
	"github.com/kisy/netan/pkg/session"
	"github.com/kisy/netan/pkg/stats"
	"github.com/kisy/netan/pkg/timing"
	"github.com/kisy/netan/pkg/web"
)

// stringSlice allows multiple -probe flags
type stringSlice []string

func (s *stringSlice) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	var (
		cfgFile string
		cfg     config.Config
	)

	defaultCfg := config.DefaultConfig()
	cfg = defaultCfg

	var listOnly bool
	var noCapture bool
	var probeFlags stringSlice

	flag.StringVar(&cfgFile, "c", "", "Path to TOML configuration file")
	flag.StringVar(&cfg.HTTPAddr, "l", defaultCfg.HTTPAddr, "Web server address")
	flag.StringVar(&cfg.LogLevel, "log", defaultCfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.IntVar(&cfg.MaxEntries, "max", defaultCfg.MaxEntries, "Resource timing buffer size")
	flag.StringVar(&cfg.DirectoryFile, "networks", defaultCfg.DirectoryFile, "YAML network directory (default: built-in mock networks)")
	flag.StringVar(&cfg.GeoIPDB, "geoip", defaultCfg.GeoIPDB, "MaxMind City database for the location lookup")
	flag.StringVar(&cfg.ClientIP, "ip", defaultCfg.ClientIP, "Address to locate with the GeoIP database")
	flag.Var(&probeFlags, "probe", "URL to fetch periodically as a recorded resource (can be specified multiple times)")
	flag.BoolVar(&noCapture, "paused", false, "Start with capturing off")
	flag.BoolVar(&listOnly, "list", false, "Print the network directory and exit")

	flag.Parse()

	// Load configuration
	if cfgFile != "" {
		if err := config.LoadConfig(cfgFile, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// Merge flags into config
	if noCapture {
		cfg.CaptureOnStart = false
	}
	if len(probeFlags) > 0 {
		cfg.ProbeURLs = append(cfg.ProbeURLs, probeFlags...)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.NewLogger(cfg.LogLevel)

	dir := directory.Default()
	if cfg.DirectoryFile != "" {
		d, err := directory.LoadFile(cfg.DirectoryFile)
		if err != nil {
			log.Error().Err(err).Msg("loading network directory")
			os.Exit(1)
		}
		dir = d
	}

	if listOnly {
		report.WriteNetworks(os.Stdout, dir.List())
		return
	}

	log.Info().
		Str("http_addr", cfg.HTTPAddr).
		Int("max_entries", cfg.MaxEntries).
		Bool("capturing", cfg.CaptureOnStart).
		Int("networks", dir.Len()).
		Strs("probe_urls", cfg.ProbeURLs).
		Msg("netan configuration")

	// 1. Metrics source
	buf := timing.NewBuffer(cfg.MaxEntries)

	// 2. Aggregator and session
	aggregator := stats.NewAggregator(buf, log)
	ctl := session.NewController(dir, aggregator, buildLocator(cfg, log), log)
	ctl.SetCapturing(cfg.CaptureOnStart)
	ctl.SetZoom(cfg.MapZoom)
	defer ctl.Close()

	// 3. Metrics export
	registry := metrics.NewRegistry(metrics.NewExporter(aggregator, ctl))

	// 4. Web server
	webServer := web.NewServer(ctl, aggregator, buf, registry, web.MapSettings{
		Style: cfg.MapStyle,
		Token: cfg.MapToken,
	}, log)
	mux := http.NewServeMux()
	webServer.RegisterHandlers(mux)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("web server stopped")
		}
	}()
	log.Info().Msgf("Web UI available at http://%s/", displayAddr(cfg.HTTPAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prober := timing.NewProber(buf, cfg.ProbeURLs, time.Duration(cfg.ProbeInterval)*time.Second, log)
	go prober.Run(ctx)

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("web server shutdown")
	}
}

func buildLocator(cfg config.Config, log zerolog.Logger) geo.Locator {
	switch {
	case cfg.GeoIPDB != "":
		return geo.GeoIPLocator{DBPath: cfg.GeoIPDB, IP: net.ParseIP(cfg.ClientIP)}
	case cfg.Latitude != nil:
		return geo.StaticLocator{Coordinates: model.Coordinates{Latitude: *cfg.Latitude, Longitude: *cfg.Longitude}}
	}
	log.Debug().Msg("no location service configured, map will use the fallback position")
	return nil
}

func displayAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host != "" {
		return addr
	}
	return "localhost:" + port
}
