package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/dapcheck/internal/config"
	"github.com/OpenTraceLab/dapcheck/pkg/dapsim"
	"github.com/OpenTraceLab/dapcheck/pkg/transport"
	"github.com/OpenTraceLab/dapcheck/pkg/vector"
)

// openTransport opens the configured adapter and wraps it with exchange
// tracing. The caller closes it.
func openTransport(c config.Config) (transport.Transport, error) {
	var t transport.Transport
	switch c.Adapter {
	case config.AdapterSim:
		t = dapsim.New(c.SimOptions()...)
	case config.AdapterUSB:
		usb, err := transport.OpenUSB(c.USBTransportConfig())
		if err != nil {
			return nil, err
		}
		logger.Info().Str("serial", usb.Serial()).Msg("probe opened")
		t = usb
	default:
		return nil, fmt.Errorf("unsupported adapter: %s (use usb or sim)", c.Adapter)
	}
	return transport.WithLogging(t, logger.With().Str("adapter", c.Adapter).Logger()), nil
}

// loadCatalog returns the built-in suites plus those in files.
func loadCatalog(files []string) (*vector.Catalog, error) {
	builtin, err := vector.Builtin()
	if err != nil {
		return nil, fmt.Errorf("built-in vectors: %w", err)
	}

	cat := vector.NewCatalog()
	if err := cat.Merge(builtin); err != nil {
		return nil, err
	}
	for _, path := range files {
		extra, err := vector.ParseFile(path)
		if err != nil {
			return nil, err
		}
		if err := cat.Merge(extra); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		logger.Debug().Str("file", path).Strs("suites", extra.Names()).Msg("vectors loaded")
	}
	return cat, nil
}
