package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"edgeops-sim/internal/admin"
	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/config"
	"edgeops-sim/internal/fleet"
	"edgeops-sim/internal/logging"
	"edgeops-sim/internal/observability"
	"edgeops-sim/internal/sink"
	"edgeops-sim/internal/world"
)

var (
	simPrintOnly  bool
	simTUI        bool
	simConfigPath string
	simSchemaPath string
	simAdminAddr  string
	simTick       time.Duration
	simLogFile    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the real-time facility simulator",
	Long:  "simulate starts the world engine, spawns the edge agent fleet, and serves the admin API with a live event feed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New()
		ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), log))
		defer cancel()

		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}

		metrics, err := observability.NewCollector(nil)
		if err != nil {
			return err
		}

		tickInterval := simTick
		if cfg.World.TickSeconds > 0 {
			tickInterval = time.Duration(cfg.World.TickSeconds * float64(time.Second))
		}
		if envTick := os.Getenv("TICK_INTERVAL"); envTick != "" {
			d, err := time.ParseDuration(envTick)
			if err != nil {
				return err
			}
			tickInterval = d
		}

		b := bus.NewBus(log,
			bus.WithQueueSize(cfg.Bus.QueueSize),
			bus.WithStreamBuffer(cfg.Bus.StreamBuffer),
			bus.WithInstrumentation(metrics),
		)
		go b.Run(ctx)

		eng := world.NewEngine(tickInterval)
		eng.OnTick(func(s world.State) {
			metrics.RecordTick()
			b.Publish(bus.New(bus.TypeTelemetryTick, map[string]any{
				"tick":             s.Tick,
				"time_of_day":      s.TimeOfDayHours,
				"weather_factor":   s.WeatherFactor,
				"operational_load": s.OperationalLoad,
				"active_scenario":  s.ActiveScenario,
			}))
		})

		regOpts := []fleet.RegistryOption{fleet.WithHealthRecorder(metrics)}
		if cfg.Monitor.HeartbeatTimeoutSeconds > 0 {
			regOpts = append(regOpts, fleet.WithHeartbeatTimeout(time.Duration(cfg.Monitor.HeartbeatTimeoutSeconds*float64(time.Second))))
		}
		if cfg.Monitor.IntervalSeconds > 0 {
			regOpts = append(regOpts, fleet.WithMonitorInterval(time.Duration(cfg.Monitor.IntervalSeconds*float64(time.Second))))
		}
		reg := fleet.NewRegistry(log, b, regOpts...)
		if err := fleet.BuildFleet(cfg, eng, b, reg); err != nil {
			return err
		}

		writer, cleanup, err := newEventWriter(cfg, log, simPrintOnly, simTUI, simLogFile)
		if err != nil {
			return err
		}
		defer cleanup()

		if tui, ok := sinkTUI(writer); ok {
			eng.OnTick(tui.UpdateWorld)
			eng.OnTick(func(world.State) { tui.UpdateHealth(reg.FleetHealth()) })
		}

		sinkStream := b.OpenStream()
		go sink.Drain(ctx, sinkStream, writer)

		eng.Start(ctx)
		reg.StartAll(ctx)

		if cfg.World.InitialScenario != "" {
			if err := eng.ActivateScenario(cfg.World.InitialScenario); err != nil {
				return err
			}
		}

		srv := admin.NewServer(log, eng, reg, b, metrics)
		go func() {
			if err := srv.Start(ctx, simAdminAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin server failed", "err", err)
				cancel()
			}
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigs:
		case <-ctx.Done():
		}

		reg.StopAll()
		eng.Stop()
		b.CloseStream(sinkStream)
		cancel()
		log.Info("simulation stopped")
		return nil
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print events to STDOUT instead of writing to DB")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Render the event stream in a terminal UI")
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "schemas/simulation.cue", "Path to CUE schema file")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin-addr", ":8080", "Admin API listen address")
	simulateCmd.Flags().DurationVar(&simTick, "tick", 2*time.Second, "World tick interval (e.g. 500ms, 2s)")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export the event log (JSONL)")
}
