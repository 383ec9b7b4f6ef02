package providers

import (
	"fmt"
	"strings"

	"github.com/parnexcodes/pairlink/internal/config"
	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/providers"
	"github.com/parnexcodes/pairlink/pkg/providers/gofile"
	"github.com/parnexcodes/pairlink/pkg/providers/nullpointer"
	"github.com/parnexcodes/pairlink/pkg/providers/pastebin"
)

// Factory creates provider instances based on configuration
type Factory struct {
	wrapper providers.WrapperConfig
}

// NewFactory creates a new provider factory
func NewFactory() *Factory {
	return &Factory{wrapper: providers.DefaultWrapperConfig()}
}

// KnownProviders lists the provider names the factory understands
func KnownProviders() []string {
	return []string{pastebin.Name, nullpointer.Name, gofile.Name}
}

// CreateProvider creates a provider instance from configuration
func (f *Factory) CreateProvider(providerConfig config.ProviderConfig) (providers.Provider, error) {
	settings := providerConfig.Settings
	if settings == nil {
		settings = map[string]interface{}{}
	}

	var (
		provider providers.Provider
		err      error
	)

	switch strings.ToLower(providerConfig.Name) {
	case pastebin.Name:
		provider, err = pastebin.New(settings)
	case nullpointer.Name, "nullpointer":
		provider, err = nullpointer.New(settings)
	case gofile.Name:
		provider, err = gofile.New(settings)
	default:
		err := fmt.Errorf("unknown provider: %s", providerConfig.Name)
		logging.ErrorContext("provider_creation", err, map[string]interface{}{
			"provider": providerConfig.Name,
		})
		return nil, err
	}

	if err != nil {
		logging.ErrorContext("provider_creation", err, map[string]interface{}{
			"provider": providerConfig.Name,
		})
		return nil, fmt.Errorf("failed to create provider '%s': %w", providerConfig.Name, err)
	}

	return providers.NewConsistencyWrapper(provider, f.wrapper), nil
}

// CreateProviders creates the enabled providers, keeping configuration order as priority order
func (f *Factory) CreateProviders(providerConfigs []config.ProviderConfig) ([]providers.Provider, error) {
	var chain []providers.Provider
	var names []string

	for _, providerConfig := range providerConfigs {
		if !providerConfig.Enabled {
			logging.ProviderConfig(providerConfig.Name, map[string]interface{}{"enabled": false})
			continue
		}

		provider, err := f.CreateProvider(providerConfig)
		if err != nil {
			return nil, err
		}

		chain = append(chain, provider)
		names = append(names, provider.Name())
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("no upload providers enabled")
	}

	logging.ProviderSelection(names)
	return chain, nil
}

// CreateProvidersFromNames builds the chain for an explicit list of names, in the order given.
// Named providers are used even when disabled in configuration.
func (f *Factory) CreateProvidersFromNames(providerNames []string, allConfigs []config.ProviderConfig) ([]providers.Provider, error) {
	byName := make(map[string]config.ProviderConfig, len(allConfigs))
	for _, pc := range allConfigs {
		byName[strings.ToLower(pc.Name)] = pc
	}

	var selected []config.ProviderConfig
	var missing []string
	for _, name := range providerNames {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "nullpointer" {
			key = nullpointer.Name
		}
		pc, ok := byName[key]
		if !ok {
			missing = append(missing, name)
			continue
		}
		pc.Enabled = true
		selected = append(selected, pc)
	}

	// Check if any requested providers were not found
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown providers: %v", missing)
	}

	return f.CreateProviders(selected)
}
