package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errNoBroker = errors.New("COHORT_MQTT_URL is not set")

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10
)

type roundsPage struct {
	RunID  string           `json:"run_id"`
	Total  uint64           `json:"total"`
	Offset uint64           `json:"offset"`
	Limit  uint64           `json:"limit"`
	Rounds []fl.RoundRecord `json:"rounds"`
}

func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [runs|rounds|checkpoint|watch]",
		Short: "Stored runs",
		Long:  `Inspect runs, round records and checkpoints kept by the configured storage, or follow running coordinators.`,
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs",
		Long:  `List the identifiers of stored runs.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			withRepository(cmd, func(ctx context.Context, repo storage.Repository) (any, error) {
				return repo.ListRuns(ctx)
			})
		},
	}

	roundsCmd := &cobra.Command{
		Use:   "rounds <run_id>",
		Short: "List rounds",
		Long:  `List the round records of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			withRepository(cmd, func(ctx context.Context, repo storage.Repository) (any, error) {
				rounds, total, err := repo.ListRounds(ctx, args[0], defOffset, defLimit)
				if err != nil {
					return nil, err
				}

				return roundsPage{
					RunID:  args[0],
					Total:  total,
					Offset: defOffset,
					Limit:  defLimit,
					Rounds: rounds,
				}, nil
			})
		},
	}

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint <run_id>",
		Short: "View checkpoint",
		Long:  `View the global parameters saved after the last completed round of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			withRepository(cmd, func(ctx context.Context, repo storage.Repository) (any, error) {
				return repo.LoadCheckpoint(ctx, args[0])
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch [run_id]",
		Short: "Watch rounds",
		Long: `Print the round notifications coordinators publish over MQTT until interrupted.

Examples:
  # Follow every run
  cohort history watch

  # Follow one run
  cohort history watch 0b6f3c1e-8d2a-4f7e-9a51-2c3d4e5f6a7b`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			var runID string
			if len(args) == 1 {
				runID = args[0]
			}

			if err := watch(cmd, runID); err != nil {
				logErrorCmd(*cmd, err)
			}
		},
	}

	cmd.AddCommand(runsCmd)
	cmd.AddCommand(roundsCmd)
	cmd.AddCommand(checkpointCmd)
	cmd.AddCommand(watchCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}

func withRepository(cmd *cobra.Command, fn func(ctx context.Context, repo storage.Repository) (any, error)) {
	ecfg, err := LoadEnv()
	if err != nil {
		logErrorCmd(*cmd, err)

		return
	}

	repo, err := storage.NewRepository(ecfg.Storage)
	if err != nil {
		logErrorCmd(*cmd, fmt.Errorf("failed to open storage: %w", err))

		return
	}
	defer repo.Close()

	v, err := fn(cmd.Context(), repo)
	if err != nil {
		logErrorCmd(*cmd, err)

		return
	}
	logJSONCmd(*cmd, v)
}

func watch(cmd *cobra.Command, runID string) error {
	ecfg, err := LoadEnv()
	if err != nil {
		return err
	}
	if ecfg.MQTT.URL == "" {
		return errNoBroker
	}

	logger, err := newLogger(cmd.ErrOrStderr(), ecfg.LogLevel)
	if err != nil {
		return err
	}

	ecfg.MQTT.ClientID = fmt.Sprintf("%s-watch-%s", ecfg.MQTT.ClientID, uuid.NewString())
	ecfg.MQTT.Watcher = true
	ps, err := mqtt.NewPubSub(ecfg.MQTT, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mqtt pubsub: %w", err)
	}
	defer ps.Disconnect(context.Background())

	return coordinator.WatchRounds(cmd.Context(), ps, ecfg.MQTT.BaseTopic, runID, func(msg map[string]any) {
		logJSONCmd(*cmd, msg)
	})
}
