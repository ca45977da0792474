package config

import (
	"fmt"

	"github.com/marmos91/dittoots/pkg/adapter"
	"github.com/marmos91/dittoots/pkg/adapter/tcp"
)

// CreateAdapters creates all enabled transport adapters from the
// configuration.
//
// Parameters:
//   - cfg: The complete DittoOTS configuration
//   - tcpMetrics: Optional TCP adapter metrics (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: Enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, tcpMetrics tcp.Metrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.TCP.Enabled {
		a, err := tcp.New(cfg.Adapters.TCP, tcpMetrics)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
