package homeassistant

import "github.com/prometheus/client_golang/prometheus"

var (
	mqttConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gobike_mqtt_connected",
		Help: "MQTT broker connection state (1=connected, 0=disconnected)",
	})
	mqttPublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobike_mqtt_publish_errors_total",
		Help: "Failed MQTT publishes",
	})
	mqttMessagesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobike_mqtt_messages_published_total",
		Help: "MQTT messages published",
	})
)
