package homeassistant

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type mqttConfig struct {
	broker            string
	clientID          string
	username          string
	password          string
	availabilityTopic string
}

type mqttClient struct {
	client mqtt.Client
}

// newMQTTClient dials the broker with auto-reconnect and a retained
// offline will on the availability topic. onConnect fires on every
// (re)connection, after the birth message is out.
func newMQTTClient(cfg mqttConfig, onConnect func(), onLost func(error)) (*mqttClient, error) {
	if cfg.broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	clientID := cfg.clientID
	if clientID == "" {
		clientID = randomClientID()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.broker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.username)
	opts.SetPassword(cfg.password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(cfg.availabilityTopic, payloadOffline, 1, true)

	mc := &mqttClient{}
	opts.OnConnect = func(client mqtt.Client) {
		_ = client.Publish(cfg.availabilityTopic, 1, true, payloadOnline).Wait()
		if onConnect != nil {
			onConnect()
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		if onLost != nil {
			onLost(err)
		}
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	// ConnectRetry keeps dialing in the background; don't hold up
	// daemon startup on a slow broker.
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, token.Error()
	}
	mc.client = client
	return mc, nil
}

func (c *mqttClient) publish(topic string, payload []byte, retain bool) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	if token := c.client.Publish(topic, 0, retain, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *mqttClient) connected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

func (c *mqttClient) disconnect() {
	if c.client != nil {
		c.client.Disconnect(250)
	}
}

func randomClientID() string {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	return "gobike-" + base64.RawURLEncoding.EncodeToString(nonce)
}
