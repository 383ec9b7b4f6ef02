package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parnexcodes/pairlink/internal/output"
)

var attemptsLimit int

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List recent pairing attempts from the ledger",
	Args:  cobra.NoArgs,
	RunE:  runAttempts,
}

func init() {
	attemptsCmd.Flags().IntVarP(&attemptsLimit, "limit", "n", 20, "number of attempts to show")
}

func runAttempts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Ledger.Path == "" {
		return errors.New("the attempt ledger is disabled (ledger.path is empty)")
	}

	rec, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer rec.Close()

	attempts, err := rec.Recent(cmd.Context(), attemptsLimit)
	if err != nil {
		return fmt.Errorf("failed to read attempts: %w", err)
	}

	handler, err := output.NewHandler(cfg.Output, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to create output handler: %w", err)
	}
	for _, a := range attempts {
		if err := handler.HandleAttempt(a); err != nil {
			return err
		}
	}
	return handler.Close()
}
