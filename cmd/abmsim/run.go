package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jintrone/abm-mp-example/internal/agents"
	"github.com/jintrone/abm-mp-example/internal/api"
	"github.com/jintrone/abm-mp-example/internal/config"
	"github.com/jintrone/abm-mp-example/internal/engine"
	"github.com/jintrone/abm-mp-example/internal/entropy"
	"github.com/jintrone/abm-mp-example/internal/field"
	"github.com/jintrone/abm-mp-example/internal/persistence"
)

// autosaveEvery is the checkpoint cadence in committed rounds.
const autosaveEvery = 10

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation",
		Long: `Run the round loop against the configured population.

A saved checkpoint is resumed automatically; pass --fresh to discard it
and start over. Flags override the corresponding config values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("rounds") {
				cfg.Simulation.Rounds, _ = cmd.Flags().GetInt("rounds")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.Seed, _ = cmd.Flags().GetInt64("seed")
			}
			if cmd.Flags().Changed("population") {
				cfg.Simulation.Population, _ = cmd.Flags().GetInt("population")
			}
			if cmd.Flags().Changed("neighbors") {
				cfg.Simulation.Neighbors, _ = cmd.Flags().GetInt("neighbors")
			}
			if cmd.Flags().Changed("workers") {
				cfg.Simulation.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("db") {
				cfg.Checkpoint.Path, _ = cmd.Flags().GetString("db")
			}
			if cmd.Flags().Changed("api") {
				cfg.API.Enabled, _ = cmd.Flags().GetBool("api")
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			fresh, _ := cmd.Flags().GetBool("fresh")
			return runSimulation(cfg, fresh)
		},
	}

	cmd.Flags().Int("rounds", 0, "Number of rounds to run")
	cmd.Flags().Int64("seed", 0, "Deterministic seed (0 picks a random one)")
	cmd.Flags().Int("population", 0, "Number of agents")
	cmd.Flags().Int("neighbors", 0, "Neighbors sampled per agent")
	cmd.Flags().Int("workers", 0, "Worker pool size")
	cmd.Flags().String("db", "", "Checkpoint database path (empty disables saving)")
	cmd.Flags().Bool("api", false, "Serve the observation API")
	cmd.Flags().Bool("fresh", false, "Discard any saved checkpoint and start a new run")

	return cmd
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})))
}

// freshEnvironment registers and sets up a new population from the
// configured entropy source.
func freshEnvironment(cfg *config.Config, src *entropy.Source) (*engine.Environment, error) {
	sim := cfg.Simulation

	var gen field.Generator
	switch sim.Init {
	case "simplex":
		gen = field.NewSimplex(src.FieldSeed(), sim.MaxInitial)
	default:
		gen = field.NewUniform(src.Values(), sim.MaxInitial)
	}

	env := engine.NewEnvironment(sim.SpecialFactor)
	for i := 0; i < sim.Population; i++ {
		env.Register()
	}

	setup, err := engine.NewSetup(sim.Population, sim.Neighbors, gen, src.Topology(), sim.TaskDelay())
	if err != nil {
		return nil, err
	}
	for _, a := range env.Agents() {
		if err := env.SetupAgent(a.ID, setup); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func checkpoint(env *engine.Environment, seed int64, runID string) *persistence.Checkpoint {
	return &persistence.Checkpoint{
		Round:         env.Round(),
		Seed:          seed,
		SpecialFactor: env.SpecialFactor,
		RunID:         runID,
		SavedAt:       time.Now(),
		Agents:        env.Agents(),
	}
}

func runSimulation(cfg *config.Config, fresh bool) error {
	setupLogging(cfg.Logging.Level)
	sim := cfg.Simulation

	var (
		db  *persistence.DB
		err error
	)
	if cfg.Checkpoint.Path != "" {
		if dir := filepath.Dir(cfg.Checkpoint.Path); dir != "." {
			os.MkdirAll(dir, 0755)
		}
		db, err = persistence.Open(cfg.Checkpoint.Path)
		if err != nil {
			return fmt.Errorf("open checkpoint db: %w", err)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Checkpoint.Path)
	}

	var (
		env   *engine.Environment
		seed  int64
		runID string
	)

	if db != nil && db.HasState() && !fresh {
		slog.Info("found saved checkpoint, loading...")
		cp, err := db.LoadCheckpoint()
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		env, err = engine.Restore(cp.SpecialFactor, cp.Agents, cp.Round)
		if err != nil {
			return fmt.Errorf("restore environment: %w", err)
		}
		seed = cp.Seed
		runID = cp.RunID
		slog.Info("checkpoint restored",
			"agents", env.Size(),
			"round", env.Round(),
			"run_id", runID,
			"saved_at", cp.SavedAt.Format(time.RFC3339),
		)
	} else {
		slog.Info("no saved checkpoint, starting fresh run...")
		src := entropy.NewSource(sim.Seed)
		seed = src.Seed()
		runID = uuid.NewString()

		env, err = freshEnvironment(cfg, src)
		if err != nil {
			return err
		}
		slog.Info("population ready",
			"agents", env.Size(),
			"neighbors", sim.Neighbors,
			"init", sim.Init,
			"seed", seed,
			"run_id", runID,
		)

		if db != nil {
			if err := db.SaveCheckpoint(checkpoint(env, seed, runID)); err != nil {
				slog.Error("initial save failed", "error", err)
			}
		}
	}

	pool := engine.NewPool(sim.Workers)
	sched := engine.NewScheduler(env, pool, agents.PoolNeighborhood)

	var srv *api.Server
	if cfg.API.Enabled {
		srv = &api.Server{
			Sched:   sched,
			Env:     env,
			Addr:    cfg.API.Addr,
			RunID:   runID,
			Seed:    seed,
			Initial: env.Snapshot().Values(),
		}
		srv.Start()
	}

	sched.OnRound = func(rep engine.RoundReport) {
		slog.Info("round committed",
			"round", rep.Round,
			"mean", fmt.Sprintf("%.2f", rep.Mean),
			"std_dev", fmt.Sprintf("%.2f", rep.StdDev),
			"took", rep.Duration.Round(time.Millisecond),
		)
		if srv != nil {
			srv.BroadcastReport(rep)
		}
		if db != nil && rep.Round%autosaveEvery == 0 {
			if err := db.SaveCheckpoint(checkpoint(env, seed, runID)); err != nil {
				slog.Error("autosave failed", "error", err)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	fmt.Printf("\n%s agents pooling with %d neighbors each, %d workers, %d rounds to go.\n",
		humanize.Comma(int64(env.Size())), sim.Neighbors, pool.Limit(), sim.Rounds)
	if cfg.API.Enabled {
		fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.API.Addr)
	}
	if env.Round() > 0 {
		fmt.Printf("Resuming from round %d\n", env.Round())
	}
	fmt.Println("Starting run... (Ctrl+C to stop)")

	start := time.Now()
	reports, runErr := sched.RunRounds(ctx, sim.Rounds)
	elapsed := time.Since(start)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			slog.Info("run interrupted", "committed_rounds", len(reports))
		} else {
			slog.Error("run aborted", "error", runErr, "committed_rounds", len(reports))
		}
	}

	if db != nil {
		slog.Info("final save...")
		if err := db.SaveCheckpoint(checkpoint(env, seed, runID)); err != nil {
			slog.Error("final save failed", "error", err)
		}
	}

	fmt.Printf("\nRun stopped at round %d: %s agent updates across %d rounds in %s.\n",
		env.Round(),
		humanize.Comma(int64(len(reports)*env.Size())),
		len(reports),
		elapsed.Round(time.Millisecond),
	)
	if rep, ok := sched.LastReport(); ok {
		fmt.Printf("Final mean %.2f, stddev %.2f.\n", rep.Mean, rep.StdDev)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run aborted: %w", runErr)
	}
	return nil
}
