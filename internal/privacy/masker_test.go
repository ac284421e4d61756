package privacy

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMask(t *testing.T) {
	r := DefaultRegistry(zap.NewNop())

	t.Run("SinglePhone", func(t *testing.T) {
		original := "联系人：张三，手机：13800138000"
		result := r.Mask(original)

		assert.Contains(t, result.Masked, "{{FP_PHONE_")
		assert.NotContains(t, result.Masked, "13800138000")
		assert.Equal(t, original, Restore(result.Masked, result.Mapping))
	})

	t.Run("MultipleTypes", func(t *testing.T) {
		original := "邮箱：test@example.com，手机：13800138000"
		result := r.Mask(original)

		assert.Contains(t, result.Masked, "{{FP_EMAIL_1}}")
		assert.Contains(t, result.Masked, "{{FP_PHONE_1}}")
		assert.Equal(t, 2, result.Mapping.Len())
		assert.Equal(t, original, Restore(result.Masked, result.Mapping))
	})

	t.Run("NoPII", func(t *testing.T) {
		original := "这是普通文本"
		result := r.Mask(original)

		assert.Equal(t, original, result.Masked)
		assert.Empty(t, result.Mapping.Mappings)
		assert.False(t, result.ScanResult.HasPII)
	})

	t.Run("PerTypeCounters", func(t *testing.T) {
		result := r.Mask("手机1：13800138001，手机2：13900139002")

		require.Equal(t, 2, result.Mapping.Len())
		assert.Equal(t, "手机1：{{FP_PHONE_1}}，手机2：{{FP_PHONE_2}}", result.Masked)
		assert.Equal(t, "13800138001", result.Mapping.Mappings["{{FP_PHONE_1}}"])
		assert.Equal(t, "13900139002", result.Mapping.Mappings["{{FP_PHONE_2}}"])
	})

	t.Run("RepeatedLiteralGetsOwnEntry", func(t *testing.T) {
		original := "a@b.io and again a@b.io"
		result := r.Mask(original)

		assert.Equal(t, "{{FP_EMAIL_1}} and again {{FP_EMAIL_2}}", result.Masked)
		assert.Equal(t, 2, result.Mapping.Len())
		assert.Equal(t, original, Restore(result.Masked, result.Mapping))
	})

	t.Run("KeepsScanResult", func(t *testing.T) {
		result := r.Mask("ip 10.0.0.1")
		require.Len(t, result.ScanResult.Items, 1)
		assert.Equal(t, IP, result.ScanResult.Items[0].Type)
	})
}

func TestRestore(t *testing.T) {
	t.Run("ModifiedSurroundingText", func(t *testing.T) {
		mapping := MaskMapping{Mappings: map[string]string{"{{FP_PHONE_1}}": "13800138000"}}

		restored := Restore("用户手机是 {{FP_PHONE_1}}，请核实", mapping)
		assert.Equal(t, "用户手机是 13800138000，请核实", restored)
	})

	t.Run("MissingPlaceholderIgnored", func(t *testing.T) {
		mapping := MaskMapping{Mappings: map[string]string{
			"{{FP_PHONE_1}}": "13800138000",
			"{{FP_EMAIL_1}}": "a@b.io",
		}}

		assert.Equal(t, "call 13800138000", Restore("call {{FP_PHONE_1}}", mapping))
	})

	t.Run("UnknownPlaceholderLeftVerbatim", func(t *testing.T) {
		mapping := MaskMapping{Mappings: map[string]string{"{{FP_PHONE_1}}": "13800138000"}}

		assert.Equal(t, "{{FP_IP_9}} stays", Restore("{{FP_IP_9}} stays", mapping))
	})

	t.Run("EveryOccurrenceReplaced", func(t *testing.T) {
		mapping := MaskMapping{Mappings: map[string]string{"{{FP_EMAIL_1}}": "a@b.io"}}

		assert.Equal(t, "a@b.io, a@b.io", Restore("{{FP_EMAIL_1}}, {{FP_EMAIL_1}}", mapping))
	})

	t.Run("InsertedLiteralNotRescanned", func(t *testing.T) {
		mapping := MaskMapping{Mappings: map[string]string{
			"{{FP_APIKEY_1}}": "{{FP_PHONE_1}}",
			"{{FP_PHONE_1}}":  "13800138000",
		}}

		assert.Equal(t, "{{FP_PHONE_1}}", Restore("{{FP_APIKEY_1}}", mapping))
	})

	t.Run("NumberedPrefixes", func(t *testing.T) {
		mappings := make(map[string]string)
		var masked []string
		for i := 1; i <= 12; i++ {
			token := Placeholder(Phone, i)
			mappings[token] = strings.Repeat("9", i)
			masked = append(masked, token)
		}

		restored := Restore(strings.Join(masked, " "), MaskMapping{Mappings: mappings})
		assert.Equal(t, "9 99 999 9999 99999 999999 9999999 99999999 999999999 9999999999 99999999999 999999999999", restored)
	})

	t.Run("EmptyMapping", func(t *testing.T) {
		assert.Equal(t, "unchanged", Restore("unchanged", MaskMapping{}))
	})
}

func TestMask_RoundTrip(t *testing.T) {
	r := DefaultRegistry(zap.NewNop())
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		text := randomText(rng)
		result := r.Mask(text)
		require.Equal(t, text, Restore(result.Masked, result.Mapping), "round trip failed for %q", text)
		assert.Equal(t, len(result.ScanResult.Items), result.Mapping.Len())
	}
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "{{FP_BANKCARD_3}}", Placeholder(BankCard, 3))
	assert.Equal(t, "{{FP_IDCARD_1}}", Placeholder(IDCard, 1))
}
