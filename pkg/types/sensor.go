package types

import "time"

// SensorKey identifies one of the fixed data points exposed by the portal
// dashboard. The set is closed: every poll cycle produces readings for a
// subset of these keys and nothing else.
type SensorKey string

const (
	SensorSupplyTemperature1          SensorKey = "supply_temperature_1"
	SensorSupplyTemperature2          SensorKey = "supply_temperature_2"
	SensorSourceTemperature1          SensorKey = "source_temperature_1"
	SensorSourceTemperature2          SensorKey = "source_temperature_2"
	SensorOutdoorTemperature          SensorKey = "outdoor_temperature"
	SensorInsideTemperature           SensorKey = "inside_temperature"
	SensorInsideConfiguredTemperature SensorKey = "inside_configured_temperature"
	SensorHotWaterTemperature         SensorKey = "hot_water_temperature"
	SensorHotWaterConfiguredTemp      SensorKey = "hot_water_configured_temperature"
	SensorPowerConsumption            SensorKey = "power_consumption"
	SensorEnergyDelivered             SensorKey = "energy_delivered"
	SensorCOP                         SensorKey = "cop"
	SensorOperationMode               SensorKey = "operation_mode"
	SensorHeatingModeStatus           SensorKey = "heating_mode_status"
	SensorDHWStatus                   SensorKey = "dhw_status"
	SensorDG1Status                   SensorKey = "dg1_status"
)

// SensorKind describes how a reading's value should be interpreted.
type SensorKind string

const (
	KindTemperature SensorKind = "temperature"
	KindEnergy      SensorKind = "energy"
	KindRatio       SensorKind = "ratio"
	KindStatus      SensorKind = "status"
	KindSwitch      SensorKind = "switch"
)

// SensorInfo is the unit/type metadata the external platform needs to
// register a sensor as a typed entity.
type SensorInfo struct {
	Key  SensorKey  `json:"key"`
	Name string     `json:"name"`
	Kind SensorKind `json:"kind"`
	Unit string     `json:"unit,omitempty"`
}

// registry is ordered so /api/sensors output is stable.
var registry = []SensorInfo{
	{Key: SensorSupplyTemperature1, Name: "Supply Water Temperature 1", Kind: KindTemperature, Unit: "°C"},
	{Key: SensorSupplyTemperature2, Name: "Supply Water Temperature 2", Kind: KindTemperature, Unit: "°C"},
	{Key: SensorSourceTemperature1, Name: "Source Temperature 1", Kind: KindTemperature, Unit: "°C"},
	{Key: SensorSourceTemperature2, Name: "Source Temperature 2", Kind: KindTemperature, Unit: "°C"},
	{Key: SensorOutdoorTemperature, Name: "Outdoor Temperature", Kind: KindTemperature, Unit: "°C"},
	{Key: SensorInsideTemperature, Name: "Inside Temperature", Kind: KindTemperature, Unit: "°C"},
	{Key: SensorInsideConfiguredTemperature, Name: "Inside Configured Temperature", Kind: KindTemperature, Unit: "°C"},
	{Key: SensorHotWaterTemperature, Name: "Hot Water Temperature", Kind: KindTemperature, Unit: "°C"},
	{Key: SensorHotWaterConfiguredTemp, Name: "Hot Water Configured Temperature", Kind: KindTemperature, Unit: "°C"},
	{Key: SensorPowerConsumption, Name: "Power Consumption", Kind: KindEnergy, Unit: "kWh"},
	{Key: SensorEnergyDelivered, Name: "Energy Delivered", Kind: KindEnergy, Unit: "kWh"},
	{Key: SensorCOP, Name: "Coefficient of Performance (SPF)", Kind: KindRatio},
	{Key: SensorOperationMode, Name: "Operation Mode", Kind: KindStatus},
	{Key: SensorHeatingModeStatus, Name: "Heating Mode Status", Kind: KindStatus},
	{Key: SensorDHWStatus, Name: "DHW Status", Kind: KindSwitch},
	{Key: SensorDG1Status, Name: "DG1 Status", Kind: KindSwitch},
}

var registryByKey = func() map[SensorKey]SensorInfo {
	m := make(map[SensorKey]SensorInfo, len(registry))
	for _, info := range registry {
		m[info.Key] = info
	}
	return m
}()

// Registry returns metadata for every known sensor, in a stable order.
func Registry() []SensorInfo {
	out := make([]SensorInfo, len(registry))
	copy(out, registry)
	return out
}

// Info returns the metadata for a single sensor key.
func Info(key SensorKey) (SensorInfo, bool) {
	info, ok := registryByKey[key]
	return info, ok
}

// Status is the canonical value for status and switch sensors.
type Status string

const (
	StatusOn       Status = "on"
	StatusOff      Status = "off"
	StatusHeating  Status = "heating"
	StatusCooling  Status = "cooling"
	StatusHotWater Status = "hot_water"
	StatusStandby  Status = "standby"
	StatusAuto     Status = "auto"
	StatusUnknown  Status = "unknown"
)

// SensorReading is a single normalized value extracted during one poll
// cycle. Numeric kinds fill Value, status kinds fill Status. Raw keeps the
// portal's original text for debugging.
type SensorReading struct {
	Key    SensorKey `json:"key"`
	Value  float64   `json:"value,omitempty"`
	Status Status    `json:"status,omitempty"`
	Raw    string    `json:"raw,omitempty"`
}

// SensorSnapshot is the complete set of readings produced by one successful
// poll cycle. Readings are never carried forward between cycles: a key
// absent from the map was simply not found this cycle.
type SensorSnapshot struct {
	TakenAt  time.Time                   `json:"takenAt"`
	Readings map[SensorKey]SensorReading `json:"readings"`
}

// Reading returns the reading for a key, if present this cycle.
func (s SensorSnapshot) Reading(key SensorKey) (SensorReading, bool) {
	r, ok := s.Readings[key]
	return r, ok
}

// Empty reports whether the snapshot carries no readings at all.
func (s SensorSnapshot) Empty() bool {
	return len(s.Readings) == 0
}
