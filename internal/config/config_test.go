package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
mysmartbike:
  bootstrap_file: /var/lib/gobike/bootstrap.json
  state_file: /var/lib/gobike/state.json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Fatalf("unexpected http_addr: %s", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != DefaultGRPCAddr {
		t.Fatalf("unexpected grpc_addr: %s", cfg.GRPCAddr)
	}
	if cfg.MySmartBike.Limit != DefaultLimit {
		t.Fatalf("unexpected limit: %d", cfg.MySmartBike.Limit)
	}
	if cfg.MySmartBike.PollInterval() != 300*time.Second {
		t.Fatalf("unexpected poll interval: %v", cfg.MySmartBike.PollInterval())
	}
	if !cfg.Session.RefreshEnabled || cfg.Session.RefreshInterval() != 6*time.Hour {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.MQTT.Enabled || cfg.Influx.Enabled {
		t.Fatalf("sinks should default to disabled: %+v %+v", cfg.MQTT, cfg.Influx)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" || cfg.MQTT.TopicPrefix != "gobike" {
		t.Fatalf("unexpected mqtt prefixes: %+v", cfg.MQTT)
	}
	if cfg.Blob.Configured() {
		t.Fatalf("blob should be disabled: %+v", cfg.Blob)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
http_addr: 127.0.0.1:18080
grpc_addr: 127.0.0.1:19000
dashboard_dir: /var/lib/grafana/dashboards
mysmartbike:
  bootstrap_file: /var/lib/gobike/bootstrap.json
  state_file: /var/lib/gobike/state.json
  limit: 10
  poll_interval_seconds: 120
session:
  refresh_interval_seconds: 3600
blob:
  endpoint: https://s3.example.com
  bucket: secrets
  access_key_file: /run/secrets/ak
  secret_key_file: /run/secrets/sk
mqtt:
  enabled: true
  broker: tcp://mosquitto:1883
  username: gobike
influx:
  enabled: true
  url: http://influx:8086
  token_file: /run/secrets/influx
  org: home
  bucket: bikes
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:18080" || cfg.GRPCAddr != "127.0.0.1:19000" {
		t.Fatalf("unexpected addrs: %s %s", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.MySmartBike.Limit != 10 || cfg.MySmartBike.PollIntervalSeconds != 120 {
		t.Fatalf("unexpected mysmartbike config: %+v", cfg.MySmartBike)
	}
	if cfg.Session.RefreshInterval() != time.Hour {
		t.Fatalf("unexpected refresh interval: %v", cfg.Session.RefreshInterval())
	}
	if !cfg.Blob.Configured() || cfg.Blob.Prefix != DefaultBlobPrefix {
		t.Fatalf("unexpected blob config: %+v", cfg.Blob)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://mosquitto:1883" {
		t.Fatalf("unexpected mqtt config: %+v", cfg.MQTT)
	}
	if !cfg.Influx.Enabled || cfg.Influx.Bucket != "bikes" {
		t.Fatalf("unexpected influx config: %+v", cfg.Influx)
	}
}

func TestLoadMissingBootstrap(t *testing.T) {
	path := writeConfig(t, `
mysmartbike:
  state_file: /var/lib/gobike/state.json
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "mysmartbike.bootstrap_file") {
		t.Fatalf("expected bootstrap_file error, got %v", err)
	}
}

func TestLoadRelativeStateFile(t *testing.T) {
	path := writeConfig(t, `
mysmartbike:
  bootstrap_file: /var/lib/gobike/bootstrap.json
  state_file: state.json
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "absolute") {
		t.Fatalf("expected absolute path error, got %v", err)
	}
}

func TestLoadPartialBlob(t *testing.T) {
	path := writeConfig(t, `
mysmartbike:
  bootstrap_file: /var/lib/gobike/bootstrap.json
  state_file: /var/lib/gobike/state.json
blob:
  endpoint: https://s3.example.com
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "blob.bucket") {
		t.Fatalf("expected blob.bucket error, got %v", err)
	}
}

func TestLoadMQTTWithoutBroker(t *testing.T) {
	path := writeConfig(t, `
mysmartbike:
  bootstrap_file: /var/lib/gobike/bootstrap.json
  state_file: /var/lib/gobike/state.json
mqtt:
  enabled: true
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "mqtt.broker") {
		t.Fatalf("expected mqtt.broker error, got %v", err)
	}
}
