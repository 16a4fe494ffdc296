package device

import "time"

// Default topics of the seed devices that ship with a fresh install.
const (
	TopicTemperatureDefault    = "iot/sensor/temperatura"
	TopicHumidityDefault       = "iot/sensor/umidade"
	TopicVentilatorCmdDefault  = "iot/actuator/Ventilador/command"
	TopicVentilatorStatDefault = "iot/actuator/Ventilador/status"
	TopicWaterValveCmdDefault  = "iot/actuator/Mangueira_de_agua/command"
	TopicWaterValveStatDefault = "iot/actuator/Mangueira_de_agua/status"
	TopicHeaterCmdDefault      = "iot/actuator/Aquecedor/command"
	TopicHeaterStatusDefault   = "iot/actuator/Aquecedor/status"
)

// DefaultSensors returns the seed sensors. They are flagged Default and
// cannot be deleted through the registry.
func DefaultSensors(now time.Time) []Sensor {
	return []Sensor{
		{
			ID:        "sensor_temp_default",
			Name:      "Sensor de Temperatura (Default)",
			Topic:     TopicTemperatureDefault,
			Unit:      "°C",
			Default:   true,
			CreatedAt: now,
		},
		{
			ID:        "sensor_hum_default",
			Name:      "Sensor de Umidade (Default)",
			Topic:     TopicHumidityDefault,
			Unit:      "%",
			Default:   true,
			CreatedAt: now,
		},
	}
}

// DefaultActuators returns the seed actuators.
func DefaultActuators(now time.Time) []Actuator {
	return []Actuator{
		{
			ID:           "actuator_vent_default",
			Name:         "Ventilador (Default)",
			CommandTopic: TopicVentilatorCmdDefault,
			StatusTopic:  TopicVentilatorStatDefault,
			Default:      true,
			CreatedAt:    now,
		},
		{
			ID:           "actuator_valve_default",
			Name:         "Mangueira de água (Default)",
			CommandTopic: TopicWaterValveCmdDefault,
			StatusTopic:  TopicWaterValveStatDefault,
			Default:      true,
			CreatedAt:    now,
		},
		{
			ID:           "actuator_heater_default",
			Name:         "Aquecedor (Default)",
			CommandTopic: TopicHeaterCmdDefault,
			StatusTopic:  TopicHeaterStatusDefault,
			Default:      true,
			CreatedAt:    now,
		},
	}
}
