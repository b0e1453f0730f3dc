package homeassistant

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/joshp123/gobike/internal/config"
	"github.com/joshp123/gobike/internal/health"
	"github.com/joshp123/gobike/mysmartbike"
)

// Publisher mirrors bike telemetry into Home Assistant over MQTT
// discovery: retained entity configs once per bike per connection,
// retained state per poll cycle.
type Publisher struct {
	topics topics
	log    *zap.SugaredLogger

	mc connection

	mu               sync.Mutex
	announced        map[string]bool
	trackerAnnounced map[string]bool
	lastErr          string
}

// connection is the slice of the MQTT client the publisher needs.
type connection interface {
	publish(topic string, payload []byte, retain bool) error
	connected() bool
	disconnect()
}

func NewPublisher(cfg config.MQTTConfig, log *zap.SugaredLogger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	password := ""
	if cfg.PasswordFile != "" {
		data, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read mqtt password: %w", err)
		}
		password = strings.TrimSpace(string(data))
	}

	p := &Publisher{
		topics:           newTopics(cfg.DiscoveryPrefix, cfg.TopicPrefix),
		log:              log,
		announced:        make(map[string]bool),
		trackerAnnounced: make(map[string]bool),
	}

	mc, err := newMQTTClient(mqttConfig{
		broker:            cfg.Broker,
		clientID:          cfg.ClientID,
		username:          cfg.Username,
		password:          password,
		availabilityTopic: p.topics.availabilityTopic,
	}, p.onConnect, p.onConnectionLost)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	p.mc = mc

	return p, nil
}

// onConnect drops the announced set so discovery is re-published
// after every reconnect; the broker may have lost retained state.
func (p *Publisher) onConnect() {
	p.mu.Lock()
	p.announced = make(map[string]bool)
	p.trackerAnnounced = make(map[string]bool)
	p.lastErr = ""
	p.mu.Unlock()

	mqttConnected.Set(1)
	p.log.Infow("mqtt connected")
}

func (p *Publisher) onConnectionLost(err error) {
	p.mu.Lock()
	p.lastErr = err.Error()
	p.mu.Unlock()

	mqttConnected.Set(0)
	p.log.Warnw("mqtt connection lost", "err", err)
}

func (p *Publisher) Name() string {
	return "homeassistant"
}

func (p *Publisher) Publish(ctx context.Context, bikes []mysmartbike.Bike, at time.Time) error {
	_ = ctx

	var firstErr error
	for _, bike := range bikes {
		if err := p.publishBike(bike, at); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("bike %s: %w", bike.Serial, err)
		}
	}
	return firstErr
}

func (p *Publisher) publishBike(bike mysmartbike.Bike, at time.Time) error {
	p.mu.Lock()
	announced := p.announced[bike.Serial]
	trackerAnnounced := p.trackerAnnounced[bike.Serial]
	p.mu.Unlock()

	if !announced {
		messages, err := sensorDiscoveryMessages(p.topics, bike)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			if err := p.send(msg); err != nil {
				return err
			}
		}
		p.mu.Lock()
		p.announced[bike.Serial] = true
		p.mu.Unlock()
	}

	// A bike may send its first GPS fix long after the sensors were
	// announced; the tracker config follows the first position.
	if !trackerAnnounced && bike.HasPosition() {
		msg, err := trackerDiscoveryMessage(p.topics, bike)
		if err != nil {
			return err
		}
		if err := p.send(msg); err != nil {
			return err
		}
		p.mu.Lock()
		p.trackerAnnounced[bike.Serial] = true
		p.mu.Unlock()
	}

	msg, err := stateMessage(p.topics, bike, at)
	if err != nil {
		return err
	}
	return p.send(msg)
}

func (p *Publisher) send(msg message) error {
	if err := p.mc.publish(msg.topic, msg.payload, true); err != nil {
		mqttPublishErrors.Inc()
		return err
	}
	mqttMessagesPublished.Inc()
	return nil
}

// Close publishes the offline state and drops the connection.
func (p *Publisher) Close() {
	_ = p.mc.publish(p.topics.availabilityTopic, []byte(payloadOffline), true)
	p.mc.disconnect()
}

func (p *Publisher) ID() string {
	return "homeassistant"
}

func (p *Publisher) Health() health.Status {
	if p.mc.connected() {
		return health.StatusHealthy
	}
	return health.StatusDegraded
}

func (p *Publisher) HealthMessage() string {
	if p.mc.connected() {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastErr != "" {
		return p.lastErr
	}
	return "mqtt not connected"
}

func (p *Publisher) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		mqttConnected,
		mqttPublishErrors,
		mqttMessagesPublished,
	}
}
