package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP        HTTPConfig    `yaml:"http"`
	MetricsPort int           `yaml:"metrics_port" env:"METRICS_PORT" env-default:"9090"`
	Storage     StorageConfig `yaml:"storage"`
	Redis       RedisConfig   `yaml:"redis"`
	Kafka       KafkaConfig   `yaml:"kafka"`
	Room        RoomConfig    `yaml:"room"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"5s"`
}

type StorageConfig struct {
	// Type selects the ticket store backend: postgres, sqlite or memory.
	Type string `yaml:"type" env:"STORAGE_TYPE" env-default:"memory"`
	DSN  string `yaml:"dsn" env:"STORAGE_DSN"`
	Path string `yaml:"path" env:"STORAGE_PATH"`
}

type RedisConfig struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"ticket_events"`
}

type RoomConfig struct {
	Capacity          int           `yaml:"capacity" env:"ROOM_CAPACITY" env-default:"5"`
	OccupancyDuration time.Duration `yaml:"occupancy_duration" env:"OCCUPANCY_DURATION" env-default:"5m"`
	ReclaimInterval   time.Duration `yaml:"reclaim_interval" env:"RECLAIM_INTERVAL" env-default:"5m"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	mustValidate(&cfg)

	return &cfg
}

func mustValidate(cfg *Config) {
	if cfg.Room.Capacity <= 0 {
		panic("room capacity must be positive")
	}
	if cfg.Room.OccupancyDuration <= 0 {
		panic("occupancy duration must be positive")
	}
	if cfg.Room.ReclaimInterval <= 0 {
		panic("reclaim interval must be positive")
	}
}

// fetchConfigPath fetches config path from command line flag or env variable.
// Priority: flag > env > default.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
