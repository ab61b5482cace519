package bus

import "fmt"

// Config is the subset of bus configuration the factory needs to select and
// construct a provider.
type Config struct {
	Provider    string                 // "dds" | "zenoh" | "memory"
	DomainID    int                    // DDS only
	ZenohConfig map[string]interface{} // opaque, Zenoh only
}

// NewProvider selects a provider implementation by tag.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemoryProvider(), nil
	case "dds":
		return NewDDSProvider(cfg.DomainID), nil
	case "zenoh":
		return NewZenohProvider(cfg.ZenohConfig), nil
	default:
		return nil, fmt.Errorf("bus: unknown provider %q", cfg.Provider)
	}
}
