package mqtt

import "fmt"

// Topic prefixes for all Gray Meter MQTT traffic.
//
// All topics use the flat scheme: graymeter/{category}/{meter_id_or_name}
const (
	// TopicPrefix is the base for all Gray Meter topics.
	TopicPrefix = "graymeter"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graymeter/system"
)

// Topics provides builders for Gray Meter MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	readingTopic := topics.Reading("meter-001")
//	// Returns: "graymeter/reading/meter-001"
type Topics struct{}

// Reading returns the topic for decoded meter readings.
//
// Example: graymeter/reading/meter-001
func (Topics) Reading(meterID string) string {
	return fmt.Sprintf("%s/reading/%s", TopicPrefix, meterID)
}

// PowerUsage returns the topic for instantaneous power samples.
// Payload is the bare watt value, suited to dashboard gauges.
//
// Example: graymeter/power/meter-001
func (Topics) PowerUsage(meterID string) string {
	return fmt.Sprintf("%s/power/%s", TopicPrefix, meterID)
}

// MeterInfo returns the topic for retained meter identity announcements.
//
// Example: graymeter/info/meter-001
func (Topics) MeterInfo(meterID string) string {
	return fmt.Sprintf("%s/info/%s", TopicPrefix, meterID)
}

// EnergyCounters returns the topic for hourly cumulative energy counters.
//
// Example: graymeter/energy/meter-001
func (Topics) EnergyCounters(meterID string) string {
	return fmt.Sprintf("%s/energy/%s", TopicPrefix, meterID)
}

// SystemStatus returns the topic for bridge online/offline status.
// Used for both LWT and graceful status messages.
//
// Example: graymeter/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemHealth returns the topic for periodic bridge health reports.
//
// Example: graymeter/system/health
func (Topics) SystemHealth() string {
	return fmt.Sprintf("%s/health", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Subscriptions
// =============================================================================

// AllReadings returns a wildcard matching readings from every meter.
//
// Example: graymeter/reading/+
func (Topics) AllReadings() string {
	return fmt.Sprintf("%s/reading/+", TopicPrefix)
}

// AllPowerUsage returns a wildcard matching power samples from every meter.
//
// Example: graymeter/power/+
func (Topics) AllPowerUsage() string {
	return fmt.Sprintf("%s/power/+", TopicPrefix)
}

// AllEnergyCounters returns a wildcard matching energy counters from every meter.
//
// Example: graymeter/energy/+
func (Topics) AllEnergyCounters() string {
	return fmt.Sprintf("%s/energy/+", TopicPrefix)
}

// AllTopics returns a wildcard matching every Gray Meter topic.
//
// Example: graymeter/#
func (Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", TopicPrefix)
}
