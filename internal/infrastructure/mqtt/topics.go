package mqtt

import "fmt"

// Topic prefixes for the plant-floor MQTT hierarchy.
//
// Producers publish under /plant/{category}/{machine_or_station}. The
// processor subscribes with single-level wildcards and routes on the
// category segment.
const (
	// TopicPrefixData carries periodic sensor readings.
	TopicPrefixData = "/plant/data"

	// TopicPrefixTracking carries machine and piece tracking events.
	TopicPrefixTracking = "/plant/tracking"

	// TopicPrefixAlerts is reserved for inbound alert messages.
	// Subscribed for forward compatibility; no producer uses it yet.
	TopicPrefixAlerts = "/plant/alerts"

	// TopicPrefixSystem is the base for processor status topics.
	TopicPrefixSystem = "/plant/system"
)

// Topics provides builders for plant MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DataReadings returns the wildcard subscription for all sensor data.
//
// Example: /plant/data/+
func (Topics) DataReadings() string {
	return TopicPrefixData + "/+"
}

// TrackingEvents returns the wildcard subscription for all tracking events.
//
// Example: /plant/tracking/+
func (Topics) TrackingEvents() string {
	return TopicPrefixTracking + "/+"
}

// Alerts returns the wildcard subscription for inbound alerts (reserved).
//
// Example: /plant/alerts/+
func (Topics) Alerts() string {
	return TopicPrefixAlerts + "/+"
}

// SystemStatus returns the processor status topic used for LWT and
// online/offline announcements.
//
// Example: /plant/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Data returns the data topic for a specific machine.
//
// Example: /plant/data/Milling1
func (Topics) Data(machine string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixData, machine)
}

// Tracking returns the tracking topic for a specific source.
//
// Example: /plant/tracking/Milling1
func (Topics) Tracking(source string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixTracking, source)
}
