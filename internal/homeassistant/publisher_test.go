package homeassistant

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/joshp123/gobike/mysmartbike"
)

type recordingConnection struct {
	topics []string
}

func (c *recordingConnection) publish(topic string, _ []byte, _ bool) error {
	c.topics = append(c.topics, topic)
	return nil
}

func (c *recordingConnection) connected() bool { return true }
func (c *recordingConnection) disconnect()     {}

func (c *recordingConnection) count(topic string) int {
	n := 0
	for _, t := range c.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func testPublisher(conn connection) *Publisher {
	return &Publisher{
		topics:           newTopics("homeassistant", "gobike"),
		log:              zap.NewNop().Sugar(),
		mc:               conn,
		announced:        make(map[string]bool),
		trackerAnnounced: make(map[string]bool),
	}
}

func TestPublisherAnnouncesTrackerOnFirstPosition(t *testing.T) {
	conn := &recordingConnection{}
	p := testPublisher(conn)
	trackerTopic := p.topics.trackerConfig("MAHLE001")

	bike := testBike()
	bike.Latitude = nil
	bike.Longitude = nil
	bike.LastPosition = nil

	// First cycle: no GPS fix yet, sensors announced, no tracker.
	if err := p.Publish(context.Background(), []mysmartbike.Bike{bike}, time.Now()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := conn.count(trackerTopic); got != 0 {
		t.Fatalf("expected no tracker config before first position, got %d", got)
	}
	if got := conn.count(p.topics.sensorConfig("MAHLE001", "odometer")); got != 1 {
		t.Fatalf("expected sensor config once, got %d", got)
	}

	// The bike gains a position mid-connection: the tracker config
	// must follow without a reconnect.
	withFix := testBike()
	if err := p.Publish(context.Background(), []mysmartbike.Bike{withFix}, time.Now()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := conn.count(trackerTopic); got != 1 {
		t.Fatalf("expected tracker config after first position, got %d", got)
	}
	if got := conn.count(p.topics.sensorConfig("MAHLE001", "odometer")); got != 1 {
		t.Fatalf("sensor configs must not be re-announced, got %d", got)
	}

	// Further cycles don't repeat the tracker config.
	if err := p.Publish(context.Background(), []mysmartbike.Bike{withFix}, time.Now()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := conn.count(trackerTopic); got != 1 {
		t.Fatalf("tracker config must be announced once per connection, got %d", got)
	}
	if got := conn.count(p.topics.state("MAHLE001")); got != 3 {
		t.Fatalf("expected one state message per cycle, got %d", got)
	}
}

func TestPublisherReannouncesAfterReconnect(t *testing.T) {
	conn := &recordingConnection{}
	p := testPublisher(conn)
	trackerTopic := p.topics.trackerConfig("MAHLE001")

	bike := testBike()
	if err := p.Publish(context.Background(), []mysmartbike.Bike{bike}, time.Now()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := conn.count(trackerTopic); got != 1 {
		t.Fatalf("expected tracker config, got %d", got)
	}

	// Reconnect drops the announced sets; everything is re-published.
	p.onConnect()
	if err := p.Publish(context.Background(), []mysmartbike.Bike{bike}, time.Now()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := conn.count(trackerTopic); got != 2 {
		t.Fatalf("expected tracker re-announced after reconnect, got %d", got)
	}
}
