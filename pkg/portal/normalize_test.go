package portal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpwatch/pumpwatch/pkg/types"
)

func TestNormalize(t *testing.T) {
	ctx := context.Background()

	t.Run("Numeric Extraction", func(t *testing.T) {
		snap := normalize(ctx, rawFields{
			types.SensorSupplyTemperature1: "45.3°C",
			types.SensorOutdoorTemperature: "7,5 °C",
			types.SensorEnergyDelivered:    "5678 kWh",
			types.SensorCOP:                "4.6",
		})
		require.Len(t, snap.Readings, 4)

		r, _ := snap.Reading(types.SensorSupplyTemperature1)
		assert.Equal(t, 45.3, r.Value)
		assert.Equal(t, "45.3°C", r.Raw, "portal wording is preserved")

		r, _ = snap.Reading(types.SensorOutdoorTemperature)
		assert.Equal(t, 7.5, r.Value, "comma decimals are accepted")

		r, _ = snap.Reading(types.SensorEnergyDelivered)
		assert.Equal(t, 5678.0, r.Value)
	})

	t.Run("Negative Temperature", func(t *testing.T) {
		snap := normalize(ctx, rawFields{types.SensorOutdoorTemperature: "-12,4°C"})
		r, ok := snap.Reading(types.SensorOutdoorTemperature)
		require.True(t, ok)
		assert.Equal(t, -12.4, r.Value)
	})

	t.Run("Out Of Range Dropped", func(t *testing.T) {
		snap := normalize(ctx, rawFields{
			types.SensorOutdoorTemperature: "-999",
			types.SensorCOP:                "99.0",
			types.SensorEnergyDelivered:    "-5",
			types.SensorSupplyTemperature1: "45.0",
		})
		assert.Len(t, snap.Readings, 1, "garbage values drop the field, not the cycle")
		_, ok := snap.Reading(types.SensorSupplyTemperature1)
		assert.True(t, ok)
	})

	t.Run("Unparseable Dropped", func(t *testing.T) {
		snap := normalize(ctx, rawFields{types.SensorCOP: "n/a"})
		assert.True(t, snap.Empty())
	})

	t.Run("Status Canonicalization", func(t *testing.T) {
		for raw, want := range map[string]types.Status{
			"ON":         types.StatusOn,
			"aan":        types.StatusOn,
			"Uit":        types.StatusOff,
			"Verwarmen":  types.StatusHeating,
			"CV":         types.StatusHeating,
			"koelen":     types.StatusCooling,
			"warm water": types.StatusHotWater,
			"Stand-by":   types.StatusStandby,
			"auto":       types.StatusAuto,
		} {
			snap := normalize(ctx, rawFields{types.SensorOperationMode: raw})
			r, ok := snap.Reading(types.SensorOperationMode)
			require.True(t, ok, raw)
			assert.Equal(t, want, r.Status, raw)
		}
	})

	t.Run("Unknown Status Kept", func(t *testing.T) {
		snap := normalize(ctx, rawFields{types.SensorOperationMode: "Ontdooien"})
		r, ok := snap.Reading(types.SensorOperationMode)
		require.True(t, ok)
		assert.Equal(t, types.StatusUnknown, r.Status)
		assert.Equal(t, "Ontdooien", r.Raw, "unrecognized modes still surface their raw text")
	})

	t.Run("Idempotent Per Input", func(t *testing.T) {
		in := rawFields{
			types.SensorSupplyTemperature1: "45.3°C",
			types.SensorDHWStatus:          "ON",
		}
		a := normalize(ctx, in)
		b := normalize(ctx, in)
		assert.Equal(t, a.Readings, b.Readings, "same input, same readings")
	})
}
