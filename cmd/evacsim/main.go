package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/internal/building"
	"github.com/signalsfoundry/evacuation-simulator/internal/journal"
	"github.com/signalsfoundry/evacuation-simulator/internal/logging"
	"github.com/signalsfoundry/evacuation-simulator/internal/observability"
	"github.com/signalsfoundry/evacuation-simulator/internal/sim"
	"github.com/signalsfoundry/evacuation-simulator/model"
	"github.com/signalsfoundry/evacuation-simulator/timectrl"
)

// Config holds the command-line settings of one run.
type Config struct {
	ScenarioPath      string
	Floor             string
	Duration          time.Duration
	TickInterval      time.Duration
	PresentInterval   time.Duration
	Accelerated       bool
	Seed              int64
	GridSize          int
	CellSize          float64
	MaxAgents         int
	SpawnProbability  float64
	IgniteProbability float64
	MetricsAddress    string
	HealthAddress     string
	JournalPath       string
}

func parseFlags(args []string) (Config, error) {
	def := sim.DefaultConfig()
	fs := flag.NewFlagSet("evacsim", flag.ContinueOnError)

	var cfg Config
	fs.StringVar(&cfg.ScenarioPath, "scenario", "configs/scenario.json", "path to the building scenario JSON")
	fs.StringVar(&cfg.Floor, "floor", building.AllFloors, "floor id to simulate, or \"all\"")
	fs.DurationVar(&cfg.Duration, "duration", 5*time.Minute, "simulated duration (0 runs until interrupted)")
	fs.DurationVar(&cfg.TickInterval, "tick", def.TickInterval, "simulation tick interval")
	fs.DurationVar(&cfg.PresentInterval, "present", def.PresentInterval, "presentation interval")
	fs.BoolVar(&cfg.Accelerated, "accelerated", true, "run in accelerated mode (vs real-time)")
	fs.Int64Var(&cfg.Seed, "seed", def.Seed, "random seed")
	fs.IntVar(&cfg.GridSize, "grid-size", def.GridSize, "navigation grid cells per side")
	fs.Float64Var(&cfg.CellSize, "cell-size", def.CellSize, "metres per grid cell")
	fs.IntVar(&cfg.MaxAgents, "max-agents", def.MaxAgents, "maximum simultaneous agents")
	fs.Float64Var(&cfg.SpawnProbability, "spawn-probability", def.SpawnProbability, "per-tick probability of spawning an agent")
	fs.Float64Var(&cfg.IgniteProbability, "ignite-probability", 0, "per-presentation probability of a new random fire")
	fs.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "HTTP address for Prometheus /metrics (empty disables)")
	fs.StringVar(&cfg.HealthAddress, "health-addr", "", "TCP address for the gRPC health service (empty disables)")
	fs.StringVar(&cfg.JournalPath, "journal", "", "SQLite run journal path (empty disables)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.IgniteProbability < 0 || cfg.IgniteProbability > 1 {
		return Config{}, fmt.Errorf("ignite-probability %v outside [0,1]", cfg.IgniteProbability)
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

// run executes one evacuation until the configured duration elapses or ctx
// is cancelled.
// simConfig builds the engine settings for cfg. The scenario speaks in
// metres, the engine in cells, so the walking speed is divided by the cell
// size here alongside the fire and exit coordinates.
func simConfig(cfg Config) (sim.Config, error) {
	simCfg := sim.DefaultConfig()
	simCfg.GridSize = cfg.GridSize
	simCfg.CellSize = cfg.CellSize
	simCfg.TickInterval = cfg.TickInterval
	simCfg.PresentInterval = cfg.PresentInterval
	simCfg.MaxAgents = cfg.MaxAgents
	simCfg.SpawnProbability = cfg.SpawnProbability
	simCfg.Seed = cfg.Seed
	if err := simCfg.Validate(); err != nil {
		return sim.Config{}, err
	}
	simCfg.AgentSpeed /= simCfg.CellSize
	return simCfg, nil
}

func run(ctx context.Context, cfg Config, log logging.Logger, out io.Writer) error {
	log = logging.OrNoop(log)

	sc, err := building.LoadFile(cfg.ScenarioPath)
	if err != nil {
		return err
	}

	simCfg, err := simConfig(cfg)
	if err != nil {
		return err
	}

	floorData, err := sc.FilterByFloor(cfg.Floor)
	if err != nil {
		return err
	}
	grid, gridStats, err := sc.NavigationGrid(cfg.Floor, simCfg.GridSize, simCfg.CellSize)
	if err != nil {
		return err
	}
	log.Info(ctx, "navigation grid built",
		logging.String("scenario", sc.Name),
		logging.String("floor", cfg.Floor),
		logging.Int("circulation_cells", gridStats.CirculationCells),
		logging.Int("obstacle_cells", gridStats.ObstacleCells),
		logging.Int("skipped_records", gridStats.Skipped),
	)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log,
		attribute.String("evac.scenario", sc.Name),
		attribute.String("evac.floor", cfg.Floor),
		attribute.Int64("evac.seed", cfg.Seed),
	)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if metricsSrv := serveMetrics(cfg.MetricsAddress, collector, log); metricsSrv != nil {
		defer shutdownHTTP(metricsSrv)
	}

	var health *observability.HealthReporter
	if cfg.HealthAddress != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddress)
		if err != nil {
			return fmt.Errorf("listen for health: %w", err)
		}
		health = observability.NewHealthReporter(collector, log)
		go func() {
			if err := health.Serve(lis); err != nil {
				log.Warn(ctx, "health server exited", logging.Err(err))
			}
		}()
		defer health.Stop()
	}

	opts := []sim.Option{sim.WithLogger(log), sim.WithMetrics(collector)}
	var jrnl *journal.Journal
	if cfg.JournalPath != "" {
		jrnl, err = journal.Open(ctx, cfg.JournalPath, journal.Run{
			ID:       uuid.NewString(),
			Scenario: sc.Name,
			Floor:    cfg.Floor,
			Seed:     cfg.Seed,
		})
		if err != nil {
			return err
		}
		defer jrnl.Close()
		opts = append(opts, sim.WithPresentationSink(jrnl), sim.WithEvacuationSink(jrnl))
	}

	simulation, err := sim.New(simCfg, grid, sc.GridFires(simCfg.CellSize), sc.GridEvacuationPoints(simCfg.CellSize), opts...)
	if err != nil {
		return err
	}

	rep := newReporter(out, simCfg.OvercrowdThreshold)
	rep.floor(sc.Info(), cfg.Floor, floorData, gridStats)

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(time.Now().UTC(), simCfg.TickInterval, simCfg.PresentInterval, mode)

	igniter := newIgniter(cfg.IgniteProbability, cfg.Seed, simCfg.GridSize)
	tc.AddListener(func(time.Time) {
		simulation.Step(ctx)
	})
	tc.AddPresentListener(func(time.Time) {
		rep.snapshot(simulation.Present(ctx))
		if src, ok := igniter.next(simulation.Surface()); ok {
			simulation.Ignite(ctx, src)
		}
	})

	log.Info(ctx, "starting evacuation",
		logging.String("mode", mode.String()),
		logging.String("duration", cfg.Duration.String()),
		logging.Int("max_agents", simCfg.MaxAgents),
	)
	if health != nil {
		health.SetRunning(true)
	}
	done := tc.Start(cfg.Duration)
	select {
	case <-done:
	case <-ctx.Done():
		tc.Stop()
		<-done
	}
	if health != nil {
		health.SetRunning(false)
	}

	var exits []journal.ExitCount
	if jrnl != nil {
		// The run's own context may be cancelled by now.
		exits, err = jrnl.ExitUsage(context.Background())
		if err != nil {
			log.Warn(ctx, "failed to read exit usage", logging.Err(err))
		}
	}
	rep.summary(simulation.Statistics(), exits)
	log.Info(ctx, "evacuation finished", logging.Uint64("ticks", simulation.Tick()))
	return nil
}

// igniter starts random fires on the presentation cadence.
type igniter struct {
	probability float64
	rng         *rand.Rand
	gridSize    int
	count       int
}

func newIgniter(probability float64, seed int64, gridSize int) *igniter {
	return &igniter{probability: probability, rng: rand.New(rand.NewSource(seed + 1)), gridSize: gridSize}
}

func (ig *igniter) next(surface core.Surface) (model.FireSource, bool) {
	if ig.probability <= 0 || ig.rng.Float64() >= ig.probability {
		return model.FireSource{}, false
	}
	pos := model.Position{
		X: ig.rng.Float64() * float64(ig.gridSize),
		Z: ig.rng.Float64() * float64(ig.gridSize),
	}
	if c, ok := surface.At(core.FromPosition(pos).Cell()); !ok || !c.Walkable {
		return model.FireSource{}, false
	}
	ig.count++
	return model.FireSource{
		ID:        fmt.Sprintf("ignition-%d", ig.count),
		Position:  pos,
		Radius:    1,
		Intensity: ig.rng.Float64() * 100,
	}, true
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
