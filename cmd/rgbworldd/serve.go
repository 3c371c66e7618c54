package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/edwinsyarief/rgbworld"
	"github.com/edwinsyarief/rgbworld/internal/egress"
	"github.com/edwinsyarief/rgbworld/internal/ingress"
	"github.com/edwinsyarief/rgbworld/internal/plugin"
	"github.com/edwinsyarief/rgbworld/internal/scheduler"
	"github.com/edwinsyarief/rgbworld/internal/spatial"
	"github.com/edwinsyarief/rgbworld/internal/store"
)

var (
	profileMode   string
	metricsAddr   string
	tickRate      time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tick scheduler against a versioned store",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&profileMode, "profile", "", "enable profiling: cpu or mem (teacher's own profile/*/main.go pattern)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9090", "address for the /metrics HTTP endpoint")
	serveCmd.Flags().DurationVar(&tickRate, "tick-rate", 50*time.Millisecond, "wall-clock interval between ticks")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDie()

	switch profileMode {
	case "cpu":
		p := profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		defer p.Stop()
	case "mem":
		p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
		defer p.Stop()
	case "":
	default:
		logger.Fatal().Str("mode", profileMode).Msg("unknown --profile value")
	}

	st, err := store.OpenStore(cfg.Store.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	egress.RegisterComponent()
	w := rgbworld.NewWorld()
	grid := spatial.NewGrid()

	ingressQueue := ingress.NewQueue(cfg.Network.IngressBuffer)

	sched := scheduler.New(w, grid)
	sched.Committer = st
	sched.Commands = ingressQueue.Chan()
	sched.Concurrency = cfg.Scheduler.Concurrency
	sched.PhaseDeadline = time.Duration(cfg.Scheduler.PhaseDeadlineMS) * time.Millisecond
	sched.MaxCommandsPerTick = cfg.Scheduler.MaxCommandsPerTick
	sched.Limiter = rate.NewLimiter(rate.Limit(cfg.Scheduler.CommandsPerSecond), cfg.Scheduler.CommandBurst)
	sched.Logger = logger

	pluginHost := plugin.NewHost(w)
	for _, path := range cfg.Plugins.Paths {
		if err := pluginHost.Load(path); err != nil {
			return err
		}
		logger.Info().Str("path", path).Msg("plugin loaded")
	}
	defer func() {
		if err := pluginHost.UnloadAll(); err != nil {
			logger.Error().Err(err).Msg("plugin unload failed")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	defer metricsSrv.Close()

	logger.Info().
		Str("dataDir", cfg.Store.DataDir).
		Str("listenAddr", cfg.Network.ListenAddr).
		Str("metricsAddr", metricsAddr).
		Dur("tickRate", tickRate).
		Msg("rgbworldd serve starting")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info().Msg("shutdown signal received")
			return nil
		case <-ticker.C:
			if err := sched.RunTick(ctx); err != nil {
				logger.Error().Err(err).Msg("tick failed")
				continue
			}
			if err := egress.DrainAll(w, noopDrainer{}); err != nil {
				logger.Error().Err(err).Msg("egress drain failed")
			}
		}
	}
}

// noopDrainer is the default Drainer until a real transport is wired
// onto rgbworldd serve; it exists so DrainAll always has a caller.
type noopDrainer struct{}

func (noopDrainer) Send(connectionHandle uint64, payload []byte) error { return nil }
