package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPath         = "/etc/gobike/config.yaml"
	DefaultGRPCAddr     = "0.0.0.0:9000"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultLimit        = 5
	DefaultPollSeconds  = 300
	DefaultLoginSeconds = 21600
	DefaultBlobPrefix   = "gobike/session"
	DefaultMQTTClientID = "gobike"
	DefaultTopicPrefix  = "gobike"
	DefaultDiscovery    = "homeassistant"
)

// Config is the runtime configuration for the gobike daemon.
type Config struct {
	HTTPAddr     string
	GRPCAddr     string
	DashboardDir string

	MySmartBike MySmartBikeConfig
	Session     SessionConfig
	Blob        BlobConfig
	MQTT        MQTTConfig
	Influx      InfluxConfig
}

// MySmartBikeConfig configures the cloud client and the poll loop.
type MySmartBikeConfig struct {
	BootstrapFile       string
	StateFile           string
	BaseURL             string
	Limit               int
	PollIntervalSeconds int
}

// SessionConfig controls the periodic credential re-login.
type SessionConfig struct {
	RefreshEnabled         bool
	RefreshIntervalSeconds int
}

// BlobConfig mirrors session state to S3-compatible object storage.
// All fields empty disables the mirror.
type BlobConfig struct {
	Endpoint      string
	Bucket        string
	AccessKeyFile string
	SecretKeyFile string
	Region        string
	Prefix        string
}

// MQTTConfig configures the Home Assistant discovery publisher.
type MQTTConfig struct {
	Enabled         bool
	Broker          string
	ClientID        string
	Username        string
	PasswordFile    string
	DiscoveryPrefix string
	TopicPrefix     string
}

// InfluxConfig configures the optional telemetry history sink.
type InfluxConfig struct {
	Enabled   bool
	URL       string
	TokenFile string
	Org       string
	Bucket    string
}

// Load reads config.yaml (explicit path or the search path), applies
// defaults and GOBIKE_* env overrides, and validates.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("/etc/gobike")
		v.AddConfigPath("$HOME/.config/gobike")
	}

	setDefaults(v)
	v.SetEnvPrefix("gobike")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound || path != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", DefaultHTTPAddr)
	v.SetDefault("grpc_addr", DefaultGRPCAddr)
	v.SetDefault("dashboard_dir", "")

	v.SetDefault("mysmartbike.base_url", "")
	v.SetDefault("mysmartbike.limit", DefaultLimit)
	v.SetDefault("mysmartbike.poll_interval_seconds", DefaultPollSeconds)

	v.SetDefault("session.refresh_enabled", true)
	v.SetDefault("session.refresh_interval_seconds", DefaultLoginSeconds)

	v.SetDefault("blob.prefix", DefaultBlobPrefix)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.client_id", DefaultMQTTClientID)
	v.SetDefault("mqtt.discovery_prefix", DefaultDiscovery)
	v.SetDefault("mqtt.topic_prefix", DefaultTopicPrefix)

	v.SetDefault("influx.enabled", false)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		HTTPAddr:     v.GetString("http_addr"),
		GRPCAddr:     v.GetString("grpc_addr"),
		DashboardDir: v.GetString("dashboard_dir"),
		MySmartBike: MySmartBikeConfig{
			BootstrapFile:       v.GetString("mysmartbike.bootstrap_file"),
			StateFile:           v.GetString("mysmartbike.state_file"),
			BaseURL:             v.GetString("mysmartbike.base_url"),
			Limit:               v.GetInt("mysmartbike.limit"),
			PollIntervalSeconds: v.GetInt("mysmartbike.poll_interval_seconds"),
		},
		Session: SessionConfig{
			RefreshEnabled:         v.GetBool("session.refresh_enabled"),
			RefreshIntervalSeconds: v.GetInt("session.refresh_interval_seconds"),
		},
		Blob: BlobConfig{
			Endpoint:      v.GetString("blob.endpoint"),
			Bucket:        v.GetString("blob.bucket"),
			AccessKeyFile: v.GetString("blob.access_key_file"),
			SecretKeyFile: v.GetString("blob.secret_key_file"),
			Region:        v.GetString("blob.region"),
			Prefix:        v.GetString("blob.prefix"),
		},
		MQTT: MQTTConfig{
			Enabled:         v.GetBool("mqtt.enabled"),
			Broker:          v.GetString("mqtt.broker"),
			ClientID:        v.GetString("mqtt.client_id"),
			Username:        v.GetString("mqtt.username"),
			PasswordFile:    v.GetString("mqtt.password_file"),
			DiscoveryPrefix: v.GetString("mqtt.discovery_prefix"),
			TopicPrefix:     v.GetString("mqtt.topic_prefix"),
		},
		Influx: InfluxConfig{
			Enabled:   v.GetBool("influx.enabled"),
			URL:       v.GetString("influx.url"),
			TokenFile: v.GetString("influx.token_file"),
			Org:       v.GetString("influx.org"),
			Bucket:    v.GetString("influx.bucket"),
		},
	}
}

// Validate enforces required keys and cross-field constraints.
func Validate(cfg Config) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if cfg.GRPCAddr == "" {
		return fmt.Errorf("grpc_addr is required")
	}
	if cfg.MySmartBike.BootstrapFile == "" {
		return fmt.Errorf("mysmartbike.bootstrap_file is required")
	}
	if cfg.MySmartBike.StateFile == "" {
		return fmt.Errorf("mysmartbike.state_file is required")
	}
	if !filepath.IsAbs(cfg.MySmartBike.StateFile) {
		return fmt.Errorf("mysmartbike.state_file must be an absolute path")
	}
	if cfg.MySmartBike.Limit <= 0 {
		return fmt.Errorf("mysmartbike.limit must be positive")
	}
	if cfg.MySmartBike.PollIntervalSeconds <= 0 {
		return fmt.Errorf("mysmartbike.poll_interval_seconds must be positive")
	}
	if cfg.Session.RefreshEnabled && cfg.Session.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("session.refresh_interval_seconds must be positive")
	}

	if cfg.Blob.Configured() {
		if cfg.Blob.Endpoint == "" {
			return fmt.Errorf("blob.endpoint is required when blob storage is configured")
		}
		if cfg.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required when blob storage is configured")
		}
		if cfg.Blob.AccessKeyFile == "" {
			return fmt.Errorf("blob.access_key_file is required when blob storage is configured")
		}
		if cfg.Blob.SecretKeyFile == "" {
			return fmt.Errorf("blob.secret_key_file is required when blob storage is configured")
		}
	}

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enabled is set")
	}

	if cfg.Influx.Enabled {
		if cfg.Influx.URL == "" {
			return fmt.Errorf("influx.url is required when influx.enabled is set")
		}
		if cfg.Influx.TokenFile == "" {
			return fmt.Errorf("influx.token_file is required when influx.enabled is set")
		}
		if cfg.Influx.Org == "" {
			return fmt.Errorf("influx.org is required when influx.enabled is set")
		}
		if cfg.Influx.Bucket == "" {
			return fmt.Errorf("influx.bucket is required when influx.enabled is set")
		}
	}

	return nil
}

// Configured reports whether any blob storage key is set.
func (b BlobConfig) Configured() bool {
	return b.Endpoint != "" || b.Bucket != "" || b.AccessKeyFile != "" || b.SecretKeyFile != ""
}

// PollInterval returns the poll loop interval as a duration.
func (m MySmartBikeConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSeconds) * time.Second
}

// RefreshInterval returns the re-login interval, or 0 when disabled.
func (s SessionConfig) RefreshInterval() time.Duration {
	if !s.RefreshEnabled {
		return 0
	}
	return time.Duration(s.RefreshIntervalSeconds) * time.Second
}
