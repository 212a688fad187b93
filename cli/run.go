package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/absmach/cohort"
	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/coordinator/api"
	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/participant/middleware"
	"github.com/absmach/cohort/participant/wasm"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/prometheus"
	"github.com/absmach/cohort/pkg/sim"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/pkg/strategy"
	"github.com/absmach/cohort/pkg/tracing"
	"github.com/go-kit/kit/metrics"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// RunOptions are the command line overrides of a run.
type RunOptions struct {
	ConfigPath  string
	RunID       string
	WasmPath    string
	Rounds      int
	Concurrency int
	// Serve keeps the API up after the run until the context is done.
	Serve bool
}

// Summary is printed when a run ends.
type Summary struct {
	coordinator.Result
	Error string `json:"error,omitempty"`
}

func NewRunCmd() *cobra.Command {
	var opts RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a federation",
		Long: `Run a federated training run over simulated participants.

Examples:
  # Run with defaults
  cohort run

  # Run from a config file with more rounds
  cohort run --config cohort.toml --rounds 10

  # Train with a WebAssembly participant module
  cohort run --wasm participant.wasm`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			ecfg, err := LoadEnv()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			rcfg, err := loadRunConfig(cmd, opts)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			res, err := Run(cmd.Context(), ecfg, rcfg, opts, cmd.ErrOrStderr())
			summary := Summary{Result: res}
			if err != nil {
				summary.Error = err.Error()
				logErrorCmd(*cmd, err)
			}
			if res.RunID != "" {
				logJSONCmd(*cmd, summary)
			}
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a TOML run configuration")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "Run identifier, generated when empty")
	cmd.Flags().StringVar(&opts.WasmPath, "wasm", "", "WebAssembly participant module used instead of the simulation")
	cmd.Flags().IntVarP(&opts.Rounds, "rounds", "r", 0, "Number of rounds")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Participant handles allowed at the same time")
	cmd.Flags().BoolVar(&opts.Serve, "serve", false, "Keep serving the API after the run ends")

	return cmd
}

func loadRunConfig(cmd *cobra.Command, opts RunOptions) (cohort.Config, error) {
	cfg := cohort.Default()
	if opts.ConfigPath != "" {
		c, err := cohort.LoadConfig(opts.ConfigPath)
		if err != nil {
			return cohort.Config{}, err
		}
		cfg = *c
	}
	if cmd.Flags().Changed("rounds") {
		cfg.Run.Rounds = opts.Rounds
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Run.Concurrency = opts.Concurrency
	}

	return cfg, nil
}

// Run wires the coordinator with its participants, observers and API, and
// executes one run. logs receives the structured log output.
func Run(ctx context.Context, ecfg EnvConfig, rcfg cohort.Config, opts RunOptions, logs io.Writer) (coordinator.Result, error) {
	if opts.RunID != "" {
		if err := storage.ValidateRunID(opts.RunID); err != nil {
			return coordinator.Result{}, err
		}
	}

	logger, err := newLogger(logs, ecfg.LogLevel)
	if err != nil {
		return coordinator.Result{}, err
	}
	slog.SetDefault(logger)

	if ecfg.InstanceID == "" {
		ecfg.InstanceID = uuid.NewString()
	}

	tp, err := tracing.NewProvider(ctx, svcName, ecfg.Tracing)
	if err != nil {
		return coordinator.Result{}, fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("error shutting down tracer provider", slog.Any("error", err))
		}
	}()
	tracer := tp.Tracer()

	simulation, err := sim.New(rcfg.SimulationConfig())
	if err != nil {
		return coordinator.Result{}, fmt.Errorf("failed to create simulation: %w", err)
	}
	registry, err := simulation.Registry()
	if err != nil {
		return coordinator.Result{}, err
	}

	sc, err := rcfg.StrategyConfig()
	if err != nil {
		return coordinator.Result{}, err
	}

	var factory participant.Factory = simulation
	if opts.WasmPath != "" {
		binary, err := os.ReadFile(opts.WasmPath)
		if err != nil {
			return coordinator.Result{}, fmt.Errorf("failed to read participant module: %w", err)
		}
		wf, err := wasm.NewFactory(ctx, binary, logger)
		if err != nil {
			return coordinator.Result{}, err
		}
		defer func() {
			if err := wf.Close(context.Background()); err != nil {
				logger.Error("failed to close participant runtime", slog.Any("error", err))
			}
		}()
		factory = wf
	} else {
		// The module defines its own model, so only the simulation has a
		// known initial model and holdout set.
		initial := simulation.InitialParameters()
		sc.InitialParameters = &initial
		if rcfg.Strategy.Centralized {
			sc.EvaluateFn = simulation.Evaluate
		}
	}

	m := instruments()
	factory = middleware.Instrument(factory, logger, tracer, m.counter, m.latency)

	strat, err := strategy.NewFedAvg(sc)
	if err != nil {
		return coordinator.Result{}, err
	}

	repo, err := storage.NewRepository(ecfg.Storage)
	if err != nil {
		return coordinator.Result{}, err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	observers := []coordinator.Observer{
		coordinator.Checkpointer(repo),
		coordinator.Gauges(m.round, m.loss, m.failures),
	}
	if ecfg.MQTT.URL != "" {
		ps, err := mqtt.NewPubSub(ecfg.MQTT, logger)
		if err != nil {
			return coordinator.Result{}, fmt.Errorf("failed to initialize mqtt pubsub: %w", err)
		}
		defer func() {
			if err := ps.Disconnect(context.Background()); err != nil {
				logger.Error("failed to disconnect from mqtt broker", slog.Any("error", err))
			}
		}()
		observers = append(observers, coordinator.Notifier(ps, ecfg.MQTT.BaseTopic))
	}

	coordOpts := []coordinator.Option{
		coordinator.WithObservers(observers...),
		coordinator.WithTracer(tracer),
	}
	if opts.RunID != "" {
		coordOpts = append(coordOpts, coordinator.WithRunID(opts.RunID))
	}
	coord, err := coordinator.New(rcfg.CoordinatorConfig(), registry, factory, strat, logger, coordOpts...)
	if err != nil {
		return coordinator.Result{}, err
	}

	if ecfg.HTTPPort == "" {
		return coord.Run(ctx)
	}

	return serve(ctx, coord, ecfg, opts.Serve, logger)
}

type collectors struct {
	counter  metrics.Counter
	latency  metrics.Histogram
	round    metrics.Gauge
	loss     metrics.Gauge
	failures metrics.Gauge
}

// instruments registers the process collectors once, so several runs can
// share the default registry.
var instruments = sync.OnceValue(func() collectors {
	counter, latency := prometheus.MakeMetrics(svcName, "participant", "method", "outcome")

	return collectors{
		counter:  counter,
		latency:  latency,
		round:    prometheus.NewGauge(svcName, "run", "round", "Last completed round."),
		loss:     prometheus.NewGauge(svcName, "run", "loss", "Loss of the last completed round.", "kind"),
		failures: prometheus.NewGauge(svcName, "run", "failures", "Participant failures in the last completed round.", "phase"),
	}
})

func serve(ctx context.Context, coord *coordinator.Coordinator, ecfg EnvConfig, keep bool, logger *slog.Logger) (coordinator.Result, error) {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", ecfg.HTTPPort),
		Handler:           api.MakeHandler(coord, logger, ecfg.InstanceID),
		ReadHeaderTimeout: shutdownTimeout,
	}

	var (
		res    coordinator.Result
		runErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(fmt.Sprintf("%s service HTTP server listening at %s", svcName, srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s service HTTP server failed: %w", svcName, err)
		}

		return nil
	})
	g.Go(func() error {
		res, runErr = coord.Run(gctx)
		if keep && runErr == nil {
			<-gctx.Done()
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(sctx)
	})
	err := g.Wait()

	if runErr != nil {
		return res, runErr
	}

	return res, err
}
