package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type SessionConfig struct {
	Env        string `yaml:"env" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	SessionDB  `yaml:"session_db"`
	LogConfig  `yaml:"log_config"`
	MqttBroker `yaml:"mqtt_broker"`
	KafkaFeed  `yaml:"kafka_feed"`
	Square     `yaml:"square"`
	Charger    `yaml:"charger"`
	Admin      `yaml:"admin"`
	Finalize   `yaml:"finalize"`
}

type HTTPServer struct {
	Host string `yaml:"host" env-default:"0.0.0.0"`
	Port string `yaml:"port" env-default:"8090"`
}

type SessionDB struct {
	Dsn            string `yaml:"dsn"`
	MigrationsPath string `yaml:"migrations_path"`
}

type LogConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogOutput string `yaml:"log_output"`
}

type MqttBroker struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port" env-default:"1883"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type KafkaFeed struct {
	Host  string `yaml:"host"`
	Port  string `yaml:"port"`
	Topic string `yaml:"topic" env-default:"ev-session-events"`
}

type Square struct {
	Sandbox     bool   `yaml:"sandbox" env-default:"true"`
	AppID       string `yaml:"app_id"`
	AccessToken string `yaml:"access_token"`
	LocationID  string `yaml:"location_id"`
	ChargeCents int64  `yaml:"charge_cents" env-default:"100"`
}

type Charger struct {
	HomeID    string `yaml:"home_id"`
	ChargerID string `yaml:"charger_id"`
}

type Admin struct {
	Enabled  bool   `yaml:"enabled" env-default:"true"`
	Username string `yaml:"username" env-default:"admin"`
	Password string `yaml:"password"`
}

type Finalize struct {
	MaxRetries      int           `yaml:"max_retries" env-default:"3"`
	RetryDelay      time.Duration `yaml:"retry_delay" env-default:"5s"`
	ResponseTimeout time.Duration `yaml:"response_timeout" env-default:"15s"`
}

// Environment names the gateway environment recorded on session rows.
func (s Square) Environment() string {
	if s.Sandbox {
		return "sandbox"
	}
	return "production"
}

// MustLoad reads the YAML config named by SESSION_CONFIG_PATH and validates
// everything the service cannot run without. Validation failures are fatal
// at boot rather than discovered per request.
func MustLoad() *SessionConfig {
	configPath := os.Getenv("SESSION_CONFIG_PATH")

	if configPath == "" {
		log.Fatalf("SESSION_CONFIG_PATH was not found\n")
	}

	if _, err := os.Stat(configPath); err != nil {
		log.Fatalf("failed to find config file: %v\n", err)
	}

	var cfg SessionConfig
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	if cfg.SessionDB.Dsn == "" {
		log.Fatalf("session_db.dsn must be set")
	}
	if cfg.Square.AppID == "" || cfg.Square.AccessToken == "" {
		log.Fatalf("square.app_id and square.access_token must both be set (sandbox=%v)", cfg.Square.Sandbox)
	}
	if cfg.Charger.HomeID == "" || cfg.Charger.ChargerID == "" {
		log.Fatalf("charger.home_id and charger.charger_id must both be set")
	}
	if cfg.Admin.Enabled && cfg.Admin.Password == "" {
		log.Fatalf("admin.enabled is true but admin.password is not set")
	}
	if cfg.Finalize.MaxRetries < 1 {
		log.Fatalf("finalize.max_retries must be at least 1")
	}

	return &cfg
}
