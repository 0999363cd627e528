package portal

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pumpwatch/pumpwatch/pkg/log"
	"github.com/pumpwatch/pumpwatch/pkg/types"
)

// Physical sanity gates. A value outside these is garbage from a parsing
// mishap or a glitching unit; it is dropped with a warning instead of being
// handed to downstream consumers.
const (
	minTemperatureC = -50
	maxTemperatureC = 150
	maxEnergyKWH    = 100000
	maxCOP          = 20
)

// numberRe pulls the first decimal number out of a label's text, accepting
// both "45.3" and the Dutch "7,5", with the unit suffix left behind.
var numberRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// statusTokens maps the portal's raw status strings (both the English and
// the Dutch UI) to canonical values.
var statusTokens = map[string]types.Status{
	"on":   types.StatusOn,
	"1":    types.StatusOn,
	"aan":  types.StatusOn,
	"true": types.StatusOn,

	"off":   types.StatusOff,
	"0":     types.StatusOff,
	"uit":   types.StatusOff,
	"false": types.StatusOff,

	"heating":   types.StatusHeating,
	"verwarmen": types.StatusHeating,
	"cv":        types.StatusHeating,

	"cooling": types.StatusCooling,
	"koelen":  types.StatusCooling,

	"dhw":        types.StatusHotWater,
	"warm water": types.StatusHotWater,
	"warmwater":  types.StatusHotWater,

	"standby":  types.StatusStandby,
	"stand-by": types.StatusStandby,
	"idle":     types.StatusStandby,

	"auto":        types.StatusAuto,
	"automatisch": types.StatusAuto,
}

// normalize converts the parser's raw strings into a typed snapshot. It is
// a pure function of its input apart from the timestamp: per-field problems
// drop that field, never the cycle.
func normalize(ctx context.Context, fields rawFields) types.SensorSnapshot {
	readings := make(map[types.SensorKey]types.SensorReading, len(fields))

	for key, raw := range fields {
		info, ok := types.Info(key)
		if !ok {
			continue
		}
		switch info.Kind {
		case types.KindTemperature, types.KindEnergy, types.KindRatio:
			v, ok := extractNumber(raw)
			if !ok {
				log.Ctx(ctx).WarnContext(ctx, "unparseable numeric reading",
					slog.String("sensor", string(key)), slog.String("raw", raw))
				continue
			}
			if !inRange(info.Kind, v) {
				log.Ctx(ctx).WarnContext(ctx, "dropping out-of-range reading",
					slog.String("sensor", string(key)), slog.Float64("value", v))
				continue
			}
			readings[key] = types.SensorReading{Key: key, Value: v, Raw: raw}
		case types.KindStatus, types.KindSwitch:
			readings[key] = types.SensorReading{Key: key, Status: canonicalStatus(raw), Raw: raw}
		}
	}

	return types.SensorSnapshot{TakenAt: time.Now(), Readings: readings}
}

func extractNumber(raw string) (float64, bool) {
	m := numberRe.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func inRange(kind types.SensorKind, v float64) bool {
	switch kind {
	case types.KindTemperature:
		return v >= minTemperatureC && v <= maxTemperatureC
	case types.KindEnergy:
		return v >= 0 && v <= maxEnergyKWH
	case types.KindRatio:
		return v >= 0 && v <= maxCOP
	}
	return false
}

// canonicalStatus maps a raw token to its canonical value. Unrecognized
// tokens become StatusUnknown rather than failing; the raw string stays on
// the reading for anyone who wants the vendor's wording.
func canonicalStatus(raw string) types.Status {
	if s, ok := statusTokens[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return types.StatusUnknown
}
