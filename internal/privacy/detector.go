package privacy

import (
	"fmt"
	"strings"

	"github.com/raaihank/flowpaste/internal/config"
	"go.uber.org/zap"
)

// Detector handles PII detection, masking and restoration
type Detector struct {
	registry *Registry
	logger   *zap.Logger
	config   config.PrivacyConfig
}

// New creates a new PII detector instance
func New(cfg config.PrivacyConfig, log *zap.Logger) (*Detector, error) {
	if log == nil {
		log = zap.NewNop()
	}

	registry, err := DefaultRegistry(log).Restrict(cfg.Detectors)
	if err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	detector := &Detector{
		registry: registry,
		logger:   log,
		config:   cfg,
	}

	log.Info("Privacy detector initialized",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("enabled_patterns", registry.Len()),
	)

	return detector, nil
}

// Enabled reports whether detection is switched on
func (d *Detector) Enabled() bool {
	return d.config.Enabled
}

// Scan returns the PII found in text, or an empty result when disabled
func (d *Detector) Scan(text string) ScanResult {
	if !d.config.Enabled {
		return ScanResult{Items: []Item{}}
	}
	return d.registry.Scan(text)
}

// Mask masks text, or returns it unchanged when disabled
func (d *Detector) Mask(text string) MaskResult {
	if !d.config.Enabled {
		return MaskResult{
			Masked:     text,
			Mapping:    MaskMapping{Mappings: map[string]string{}},
			ScanResult: ScanResult{Items: []Item{}},
		}
	}

	result := d.registry.Mask(text)
	if result.ScanResult.HasPII {
		d.logger.Debug("PII detected and masked",
			zap.Int("items", len(result.ScanResult.Items)),
			zap.Any("counts", result.ScanResult.Counts()),
		)
	}
	return result
}

// Restore undoes a mask. It runs even when detection is disabled so that
// mappings captured earlier can still be applied.
func (d *Detector) Restore(text string, mapping MaskMapping) string {
	return Restore(text, mapping)
}

// EnabledTypes returns the active detector types in priority order
func (d *Detector) EnabledTypes() []PIIType {
	if !d.config.Enabled {
		return []PIIType{}
	}
	return d.registry.Types()
}

// ShieldRequired reports whether outgoing text for provider must be
// masked before it leaves the process.
func (d *Detector) ShieldRequired(provider string) bool {
	if !d.config.Enabled {
		return false
	}
	for _, p := range d.config.ShieldProviders {
		if p == "all" || strings.EqualFold(p, provider) {
			return true
		}
	}
	return false
}
