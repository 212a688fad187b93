package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/cohort/cli"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "cohort",
		Short: "Cohort federated learning coordinator",
		Long:  `Cohort runs rounds of federated training over a set of participants and keeps their history.`,
	}

	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewHistoryCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
