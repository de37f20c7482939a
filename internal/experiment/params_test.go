package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsMerge(t *testing.T) {
	base := Params{
		Enabled:      ptrOf(true),
		Leverage:     ptrOf(2.0),
		OrderSizeUSD: ptrOf(100.0),
	}

	merged := base.Merge(Params{
		Leverage:    ptrOf(5.0),
		CooldownSec: ptrOf(30),
	})

	// New values override, absent fields keep prior values.
	assert.Equal(t, 5.0, *merged.Leverage)
	assert.Equal(t, 30, *merged.CooldownSec)
	assert.Equal(t, true, *merged.Enabled)
	assert.Equal(t, 100.0, *merged.OrderSizeUSD)
	assert.Nil(t, merged.StopLossPct)
}

func TestParamsMergeZeroOverridesSet(t *testing.T) {
	base := Params{Leverage: ptrOf(2.0), Enabled: ptrOf(true)}
	merged := base.Merge(Params{Leverage: ptrOf(0.0), Enabled: ptrOf(false)})

	assert.Equal(t, 0.0, *merged.Leverage)
	assert.False(t, *merged.Enabled)
}

func TestParamsMergeEmptyPartialKeepsAll(t *testing.T) {
	base := Params{Leverage: ptrOf(2.0), MaxPositions: ptrOf(3)}
	merged := base.Merge(Params{})
	assert.Equal(t, base, merged)
}

func TestBuiltinPresets(t *testing.T) {
	presets := BuiltinPresets()
	assert.Len(t, presets, 8)

	seen := make(map[string]struct{}, len(presets))
	for _, preset := range presets {
		if preset.Name == "" {
			t.Fatal("preset with empty name")
		}
		if _, dup := seen[preset.Name]; dup {
			t.Fatalf("duplicate preset name: %s", preset.Name)
		}
		seen[preset.Name] = struct{}{}
	}
}
