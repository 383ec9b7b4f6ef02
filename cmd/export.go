package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/output"
	"github.com/parnexcodes/pairlink/internal/uploader"
)

var (
	exportProviders   []string
	exportConcurrency int
)

var exportCmd = &cobra.Command{
	Use:   "export [dir...]",
	Short: "Upload credential bundles left in session directories",
	Long: `Export walks the given directories (the configured sessions directory by
default) for credential bundles and pushes each through the provider chain,
the same way a live session does once it is linked.

Providers are tried in configuration order unless --providers/-p names them.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringSliceVarP(&exportProviders, "providers", "p", []string{}, "providers to try, in order")
	exportCmd.Flags().IntVarP(&exportConcurrency, "concurrency", "c", 4, "maximum number of parallel exports")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{cfg.Sessions.Dir}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("cannot export from %s: %w", p, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("path '%s' is not a directory", p)
		}
	}
	logging.FlagProcessing("paths", len(paths))
	logging.FlagProcessing("providers", exportProviders)

	chain, err := buildChain(cfg, exportProviders, uploader.ChainOptions{})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := output.NewHandler(cfg.Output, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to create output handler: %w", err)
	}

	results, err := uploader.NewExporter(cfg.Sessions.BundleName).Export(ctx, paths, uploader.ExportConfig{
		Concurrency: exportConcurrency,
		Chain:       chain,
	})
	if err != nil {
		return fmt.Errorf("failed to start export: %w", err)
	}

	total, failed := 0, 0
	for result := range results {
		total++
		if result.Error != nil {
			failed++
		}
		if err := handler.HandleResult(result); err != nil {
			return err
		}
	}
	if err := handler.Close(); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d exports failed", failed, total)
	}
	return nil
}
