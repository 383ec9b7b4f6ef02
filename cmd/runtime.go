package cmd

import (
	"fmt"
	"strings"

	"github.com/parnexcodes/pairlink/internal/config"
	"github.com/parnexcodes/pairlink/internal/ledger"
	"github.com/parnexcodes/pairlink/internal/metrics"
	"github.com/parnexcodes/pairlink/internal/providers"
	"github.com/parnexcodes/pairlink/internal/uploader"
	providerpkg "github.com/parnexcodes/pairlink/pkg/providers"
)

// buildChain creates the provider fallback chain, either from the enabled
// providers in configuration or from an explicit list of names.
func buildChain(cfg *config.Config, names []string, opts uploader.ChainOptions) (*uploader.Chain, error) {
	factory := providerpkg.NewFactory()

	var (
		list []providers.Provider
		err  error
	)
	if len(names) > 0 {
		list, err = factory.CreateProvidersFromNames(names, cfg.Providers)
	} else {
		list, err = factory.CreateProviders(cfg.GetEnabledProviders())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create providers: %w (known providers: %s)",
			err, strings.Join(providerpkg.KnownProviders(), ", "))
	}

	return uploader.NewChain(list, opts), nil
}

// openLedger opens the attempt ledger, or a no-op recorder when no path is configured
func openLedger(cfg *config.Config) (ledger.Recorder, error) {
	if cfg.Ledger.Path == "" {
		return ledger.Nop{}, nil
	}
	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", cfg.Ledger.Path, err)
	}
	return store, nil
}

func newMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New()
}
