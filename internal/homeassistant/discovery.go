package homeassistant

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joshp123/gobike/mysmartbike"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// device is the shared device block linking all entities of one bike.
type device struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// entityConfig is an MQTT discovery config payload.
type entityConfig struct {
	Name                string `json:"name"`
	UniqueID            string `json:"unique_id"`
	StateTopic          string `json:"state_topic,omitempty"`
	ValueTemplate       string `json:"value_template,omitempty"`
	DeviceClass         string `json:"device_class,omitempty"`
	UnitOfMeasurement   string `json:"unit_of_measurement,omitempty"`
	StateClass          string `json:"state_class,omitempty"`
	JSONAttributesTopic string `json:"json_attributes_topic,omitempty"`
	SourceType          string `json:"source_type,omitempty"`
	AvailabilityTopic   string `json:"availability_topic"`
	PayloadAvailable    string `json:"payload_available,omitempty"`
	PayloadNotAvailable string `json:"payload_not_available,omitempty"`
	Device              device `json:"device"`
}

// bikeState is the retained per-bike state payload. Absent readings
// are omitted so Home Assistant renders them unknown instead of zero.
type bikeState struct {
	StateOfCharge     *float64 `json:"state_of_charge,omitempty"`
	OdometerMeters    float64  `json:"odometer_m"`
	RemainingCapacity *float64 `json:"remaining_capacity,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	LastPosition      string   `json:"last_position,omitempty"`
	UpdatedAt         string   `json:"updated_at"`
}

type message struct {
	topic   string
	payload []byte
}

type topics struct {
	discoveryPrefix   string
	topicPrefix       string
	availabilityTopic string
}

func newTopics(discoveryPrefix, topicPrefix string) topics {
	return topics{
		discoveryPrefix:   discoveryPrefix,
		topicPrefix:       topicPrefix,
		availabilityTopic: topicPrefix + "/bridge/availability",
	}
}

func (t topics) state(serial string) string {
	return fmt.Sprintf("%s/bike/%s/state", t.topicPrefix, serial)
}

func (t topics) sensorConfig(serial, object string) string {
	return fmt.Sprintf("%s/sensor/mysmartbike_%s/%s/config", t.discoveryPrefix, serial, object)
}

func (t topics) trackerConfig(serial string) string {
	return fmt.Sprintf("%s/device_tracker/mysmartbike_%s/tracker/config", t.discoveryPrefix, serial)
}

func uniqueID(serial, object string) string {
	return fmt.Sprintf("mysmartbike_%s_%s", serial, object)
}

// discoveryMessages builds the retained discovery configs for one
// bike. The tracker config is omitted until the bike has reported a
// position at least once.
func discoveryMessages(t topics, bike mysmartbike.Bike) ([]message, error) {
	messages, err := sensorDiscoveryMessages(t, bike)
	if err != nil {
		return nil, err
	}

	if bike.HasPosition() {
		tracker, err := trackerDiscoveryMessage(t, bike)
		if err != nil {
			return nil, err
		}
		messages = append(messages, tracker)
	}

	return messages, nil
}

func deviceBlock(bike mysmartbike.Bike) device {
	return device{
		Identifiers:  []string{bike.Serial},
		Manufacturer: bike.Brand,
		Model:        bike.Model,
		Name:         deviceName(bike),
	}
}

func sensorDiscoveryMessages(t topics, bike mysmartbike.Bike) ([]message, error) {
	dev := deviceBlock(bike)
	stateTopic := t.state(bike.Serial)

	configs := []struct {
		topic  string
		config entityConfig
	}{
		{
			topic: t.sensorConfig(bike.Serial, "state_of_charge"),
			config: entityConfig{
				Name:              "State of charge",
				UniqueID:          uniqueID(bike.Serial, "state_of_charge"),
				StateTopic:        stateTopic,
				ValueTemplate:     "{{ value_json.state_of_charge }}",
				DeviceClass:       "battery",
				UnitOfMeasurement: "%",
				StateClass:        "measurement",
			},
		},
		{
			topic: t.sensorConfig(bike.Serial, "odometer"),
			config: entityConfig{
				Name:              "Odometer",
				UniqueID:          uniqueID(bike.Serial, "odometer"),
				StateTopic:        stateTopic,
				ValueTemplate:     "{{ value_json.odometer_m }}",
				DeviceClass:       "distance",
				UnitOfMeasurement: "m",
				StateClass:        "total_increasing",
			},
		},
		{
			topic: t.sensorConfig(bike.Serial, "remaining_capacity"),
			config: entityConfig{
				Name:              "Remaining capacity",
				UniqueID:          uniqueID(bike.Serial, "remaining_capacity"),
				StateTopic:        stateTopic,
				ValueTemplate:     "{{ value_json.remaining_capacity }}",
				DeviceClass:       "energy_storage",
				UnitOfMeasurement: "Wh",
				StateClass:        "measurement",
			},
		},
	}

	messages := make([]message, 0, len(configs)+1)
	for _, entry := range configs {
		entry.config.AvailabilityTopic = t.availabilityTopic
		entry.config.PayloadAvailable = payloadOnline
		entry.config.PayloadNotAvailable = payloadOffline
		entry.config.Device = dev

		payload, err := json.Marshal(entry.config)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message{topic: entry.topic, payload: payload})
	}

	return messages, nil
}

func trackerDiscoveryMessage(t topics, bike mysmartbike.Bike) (message, error) {
	tracker := entityConfig{
		Name:                "Location",
		UniqueID:            uniqueID(bike.Serial, "tracker"),
		JSONAttributesTopic: t.state(bike.Serial),
		SourceType:          "gps",
		AvailabilityTopic:   t.availabilityTopic,
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		Device:              deviceBlock(bike),
	}
	payload, err := json.Marshal(tracker)
	if err != nil {
		return message{}, err
	}
	return message{topic: t.trackerConfig(bike.Serial), payload: payload}, nil
}

func stateMessage(t topics, bike mysmartbike.Bike, at time.Time) (message, error) {
	state := bikeState{
		StateOfCharge:     bike.StateOfCharge,
		OdometerMeters:    bike.OdometryMeters,
		RemainingCapacity: bike.RemainingCapacity,
		Latitude:          bike.Latitude,
		Longitude:         bike.Longitude,
		UpdatedAt:         at.UTC().Format(time.RFC3339),
	}
	if bike.LastPosition != nil {
		state.LastPosition = bike.LastPosition.UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return message{}, err
	}
	return message{topic: t.state(bike.Serial), payload: payload}, nil
}

func deviceName(bike mysmartbike.Bike) string {
	if bike.Brand != "" && bike.Model != "" {
		return bike.Brand + " " + bike.Model
	}
	if bike.Model != "" {
		return bike.Model
	}
	return bike.Serial
}
