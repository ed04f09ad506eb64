package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Serial  SerialConfig  `mapstructure:"serial"`
	Bus     BusConfig     `mapstructure:"bus"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Storage StorageConfig `mapstructure:"storage"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SerialConfig contains serial line settings.
type SerialConfig struct {
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// BusConfig contains protocol engine settings.
type BusConfig struct {
	TimeoutMS   int    `mapstructure:"timeout_ms"`
	ScanFrom    int    `mapstructure:"scan_from"`
	ScanTo      int    `mapstructure:"scan_to"`
	Model       string `mapstructure:"model"`        // builtin catalog name
	CatalogFile string `mapstructure:"catalog_file"` // overrides Model when set
}

// MonitorConfig contains bus monitoring settings.
type MonitorConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ScanCron       string `mapstructure:"scan_cron"`
	SampleInterval int    `mapstructure:"sample_interval_ms"`
	SampleRegister string `mapstructure:"sample_register"`
}

// MQTTConfig contains the telemetry bridge settings.
type MQTTConfig struct {
	Broker    string `mapstructure:"broker"`
	TopicBase string `mapstructure:"topic_base"`
	ClientID  string `mapstructure:"client_id"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	QoS       int    `mapstructure:"qos"`
}

// StorageConfig contains telemetry persistence settings.
type StorageConfig struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// AuthConfig contains API authentication settings.
type AuthConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SecretKey    string `mapstructure:"secret_key"`
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"` // bcrypt
}

// LoggerConfig contains logging settings.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults.
	}

	v.SetEnvPrefix("DYNAFLOW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Watch re-reads the config file on change and hands the fresh Config to
// onChange. Reload applies to tunables only; the serial line and server
// socket keep their boot-time settings.
func Watch(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		return fmt.Errorf("watch requires an explicit config path")
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 1000000)

	v.SetDefault("bus.timeout_ms", 10)
	v.SetDefault("bus.scan_from", 0)
	v.SetDefault("bus.scan_to", 253)
	v.SetDefault("bus.model", "xl320")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.scan_cron", "@every 5m")
	v.SetDefault("monitor.sample_interval_ms", 1000)
	v.SetDefault("monitor.sample_register", "present_position")

	v.SetDefault("mqtt.topic_base", "dynaflow")
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("storage.path", "./data/dynaflow.db")
	v.SetDefault("storage.retention_days", 7)

	v.SetDefault("auth.enabled", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.dir", "./logs")
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".dynaflow")
}
