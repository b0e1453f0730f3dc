package homeassistant

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/joshp123/gobike/mysmartbike"
)

func testBike() mysmartbike.Bike {
	soc := 81.0
	capacity := 250.0
	lat := 48.01
	lon := 7.84
	position := time.Date(2026, 3, 1, 17, 45, 12, 0, time.UTC)
	return mysmartbike.Bike{
		Serial:            "MAHLE001",
		Brand:             "FAZUA",
		Model:             "Urban X",
		OdometryMeters:    125300,
		StateOfCharge:     &soc,
		RemainingCapacity: &capacity,
		Latitude:          &lat,
		Longitude:         &lon,
		LastPosition:      &position,
	}
}

func TestDiscoveryMessages(t *testing.T) {
	topics := newTopics("homeassistant", "gobike")
	messages, err := discoveryMessages(topics, testBike())
	if err != nil {
		t.Fatalf("discoveryMessages: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 configs (3 sensors + tracker), got %d", len(messages))
	}

	if messages[0].topic != "homeassistant/sensor/mysmartbike_MAHLE001/state_of_charge/config" {
		t.Fatalf("unexpected config topic: %s", messages[0].topic)
	}

	var soc entityConfig
	if err := json.Unmarshal(messages[0].payload, &soc); err != nil {
		t.Fatalf("decode soc config: %v", err)
	}
	if soc.UniqueID != "mysmartbike_MAHLE001_state_of_charge" {
		t.Fatalf("unexpected unique_id: %s", soc.UniqueID)
	}
	if soc.DeviceClass != "battery" || soc.UnitOfMeasurement != "%" || soc.StateClass != "measurement" {
		t.Fatalf("unexpected soc config: %+v", soc)
	}
	if soc.StateTopic != "gobike/bike/MAHLE001/state" {
		t.Fatalf("unexpected state topic: %s", soc.StateTopic)
	}
	if soc.AvailabilityTopic != "gobike/bridge/availability" {
		t.Fatalf("unexpected availability topic: %s", soc.AvailabilityTopic)
	}
	if len(soc.Device.Identifiers) != 1 || soc.Device.Identifiers[0] != "MAHLE001" {
		t.Fatalf("unexpected device identifiers: %v", soc.Device.Identifiers)
	}
	if soc.Device.Manufacturer != "FAZUA" || soc.Device.Name != "FAZUA Urban X" {
		t.Fatalf("unexpected device block: %+v", soc.Device)
	}

	var odometer entityConfig
	if err := json.Unmarshal(messages[1].payload, &odometer); err != nil {
		t.Fatalf("decode odometer config: %v", err)
	}
	if odometer.DeviceClass != "distance" || odometer.StateClass != "total_increasing" {
		t.Fatalf("unexpected odometer config: %+v", odometer)
	}

	var tracker entityConfig
	if err := json.Unmarshal(messages[3].payload, &tracker); err != nil {
		t.Fatalf("decode tracker config: %v", err)
	}
	if tracker.SourceType != "gps" {
		t.Fatalf("unexpected tracker source_type: %s", tracker.SourceType)
	}
	if tracker.JSONAttributesTopic != "gobike/bike/MAHLE001/state" {
		t.Fatalf("unexpected attributes topic: %s", tracker.JSONAttributesTopic)
	}
}

func TestDiscoveryOmitsTrackerWithoutPosition(t *testing.T) {
	bike := testBike()
	bike.Latitude = nil
	bike.Longitude = nil
	bike.LastPosition = nil

	topics := newTopics("homeassistant", "gobike")
	messages, err := discoveryMessages(topics, bike)
	if err != nil {
		t.Fatalf("discoveryMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 configs without tracker, got %d", len(messages))
	}
	for _, msg := range messages {
		if strings.Contains(msg.topic, "device_tracker") {
			t.Fatalf("unexpected tracker config: %s", msg.topic)
		}
	}
}

func TestStateMessage(t *testing.T) {
	topics := newTopics("homeassistant", "gobike")
	at := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	msg, err := stateMessage(topics, testBike(), at)
	if err != nil {
		t.Fatalf("stateMessage: %v", err)
	}
	if msg.topic != "gobike/bike/MAHLE001/state" {
		t.Fatalf("unexpected topic: %s", msg.topic)
	}

	var state map[string]any
	if err := json.Unmarshal(msg.payload, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state["state_of_charge"] != 81.0 {
		t.Fatalf("unexpected soc: %v", state["state_of_charge"])
	}
	if state["odometer_m"] != 125300.0 {
		t.Fatalf("unexpected odometer: %v", state["odometer_m"])
	}
	if state["latitude"] != 48.01 || state["longitude"] != 7.84 {
		t.Fatalf("unexpected position: %v %v", state["latitude"], state["longitude"])
	}
	if state["last_position"] != "2026-03-01T17:45:12Z" {
		t.Fatalf("unexpected last_position: %v", state["last_position"])
	}
	if state["updated_at"] != "2026-03-01T18:00:00Z" {
		t.Fatalf("unexpected updated_at: %v", state["updated_at"])
	}
}

func TestStateMessageOmitsMissingReadings(t *testing.T) {
	bike := testBike()
	bike.StateOfCharge = nil
	bike.RemainingCapacity = nil
	bike.Latitude = nil
	bike.Longitude = nil
	bike.LastPosition = nil

	topics := newTopics("homeassistant", "gobike")
	msg, err := stateMessage(topics, bike, time.Now())
	if err != nil {
		t.Fatalf("stateMessage: %v", err)
	}

	var state map[string]any
	if err := json.Unmarshal(msg.payload, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	for _, key := range []string{"state_of_charge", "remaining_capacity", "latitude", "longitude", "last_position"} {
		if _, present := state[key]; present {
			t.Fatalf("expected %s to be omitted: %s", key, msg.payload)
		}
	}
	if _, present := state["odometer_m"]; !present {
		t.Fatalf("odometer should always be present: %s", msg.payload)
	}
}
