package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpwatch/pumpwatch/pkg/types"
)

const fullDashboardHTML = `
<div class="pointer" data-type="aanvoer-1">45.3&deg;C</div>
<div class="pointer" data-type="aanvoer-2">44.1&deg;C</div>
<div class="pointer" data-type="bron-1">10.2&deg;C</div>
<div class="pointer" data-type="bron-2">8.7&deg;C</div>
<div class="pointer" data-type="buitentemp">7,5 &deg;C</div>
<div class="pointer" data-type="binnen temp.">20.6&deg;C</div>
<div class="pointer" data-type="ingestelde binnen temp. ">21.0&deg;C</div>
<div class="pointer" data-type="W.W. temperatuur.">52.4&deg;C</div>
<div class="pointer" data-type="W.W. temperatuur. ingesteld">55.0&deg;C</div>
<div class="pointer" data-type="Opgenomen vermogen">1234 kWh</div>
<div class="pointer" data-type="Geleverde energie">5678 kWh</div>
<div class="pointer" data-type="SPF">4.6</div>
<div class="element operation-mode">Verwarmen</div>
<div class="element heating-mode" title="CV"></div>
<div class="element dgs">
	<span class="on">dhw</span>
	<span>dg1</span>
</div>`

func TestParsePayload(t *testing.T) {
	t.Run("Full Dashboard", func(t *testing.T) {
		fields, err := parsePayload([]byte(fullDashboardHTML))
		require.NoError(t, err)
		assert.Len(t, fields, len(types.Registry()), "every registered sensor should match")
		assert.Equal(t, "45.3°C", fields[types.SensorSupplyTemperature1])
		assert.Equal(t, "7,5 °C", fields[types.SensorOutdoorTemperature])
		assert.Equal(t, "Verwarmen", fields[types.SensorOperationMode])
		assert.Equal(t, "CV", fields[types.SensorHeatingModeStatus], "heating mode comes from the title attribute")
		assert.Equal(t, "ON", fields[types.SensorDHWStatus])
		assert.Equal(t, "OFF", fields[types.SensorDG1Status])
	})

	t.Run("JSON Envelope", func(t *testing.T) {
		fields, err := parsePayload([]byte(`{"html": "<div class=\"pointer\" data-type=\"SPF\">4.6</div>"}`))
		require.NoError(t, err)
		assert.Equal(t, "4.6", fields[types.SensorCOP])
	})

	t.Run("Envelope Without HTML", func(t *testing.T) {
		_, err := parsePayload([]byte(`{"status": "ok"}`))
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		_, err := parsePayload([]byte(`{"html": `))
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Contains(t, parseErr.Reason, "JSON")
	})

	t.Run("Element Fallbacks", func(t *testing.T) {
		// UI variant without pointer labels for the inside temperatures.
		fields, err := parsePayload([]byte(`
			<div class="element inside-temp">20.4</div>
			<div class="element inside-configured-temp">21.5</div>`))
		require.NoError(t, err)
		assert.Equal(t, "20.4", fields[types.SensorInsideTemperature])
		assert.Equal(t, "21.5", fields[types.SensorInsideConfiguredTemperature])
	})

	t.Run("Partial Dashboard", func(t *testing.T) {
		fields, err := parsePayload([]byte(`<div class="pointer" data-type="buitentemp">3.1</div>`))
		require.NoError(t, err, "a single match is still a valid cycle")
		assert.Len(t, fields, 1)
	})

	t.Run("Nothing Recognizable", func(t *testing.T) {
		_, err := parsePayload([]byte(`<div class="pointer" data-type="nonsense">1</div><p>hello</p>`))
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "no recognizable data points", parseErr.Reason)
	})

	t.Run("Empty Pointer Skipped", func(t *testing.T) {
		fields, err := parsePayload([]byte(`
			<div class="pointer" data-type="aanvoer-1"></div>
			<div class="pointer" data-type="SPF">4.2</div>`))
		require.NoError(t, err)
		_, ok := fields[types.SensorSupplyTemperature1]
		assert.False(t, ok, "empty labels are treated as absent")
		assert.Equal(t, "4.2", fields[types.SensorCOP])
	})
}
