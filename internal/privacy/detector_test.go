package privacy

import (
	"testing"

	"github.com/raaihank/flowpaste/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDetector(t *testing.T) {
	logger := zap.NewNop()

	t.Run("Enabled", func(t *testing.T) {
		d, err := New(config.PrivacyConfig{Enabled: true, Detectors: []string{"all"}}, logger)
		require.NoError(t, err)

		result := d.Mask("mail me at test@example.com")
		assert.Equal(t, "mail me at {{FP_EMAIL_1}}", result.Masked)
		assert.Equal(t, "mail me at test@example.com", d.Restore(result.Masked, result.Mapping))
		assert.Len(t, d.EnabledTypes(), 6)
	})

	t.Run("Disabled", func(t *testing.T) {
		d, err := New(config.PrivacyConfig{Enabled: false, Detectors: []string{"all"}}, logger)
		require.NoError(t, err)

		assert.False(t, d.Scan("13800138000").HasPII)
		result := d.Mask("13800138000")
		assert.Equal(t, "13800138000", result.Masked)
		assert.Empty(t, result.Mapping.Mappings)
		assert.Empty(t, d.EnabledTypes())
	})

	t.Run("SubsetOfDetectors", func(t *testing.T) {
		d, err := New(config.PrivacyConfig{Enabled: true, Detectors: []string{"Email"}}, logger)
		require.NoError(t, err)

		result := d.Scan("13800138000 test@example.com")
		require.Len(t, result.Items, 1)
		assert.Equal(t, Email, result.Items[0].Type)
	})

	t.Run("UnknownDetector", func(t *testing.T) {
		_, err := New(config.PrivacyConfig{Enabled: true, Detectors: []string{"passport"}}, logger)
		assert.Error(t, err)
	})

	t.Run("ShieldRequired", func(t *testing.T) {
		d, err := New(config.PrivacyConfig{
			Enabled:         true,
			Detectors:       []string{"all"},
			ShieldProviders: []string{"OpenAI"},
		}, logger)
		require.NoError(t, err)

		assert.True(t, d.ShieldRequired("openai"))
		assert.False(t, d.ShieldRequired("Ollama"))
	})
}
