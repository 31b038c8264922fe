package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Tiles     Tiles     `envPrefix:"TILES_"`
		Telemetry Telemetry `envPrefix:"OTEL_"`
	}

	HTTP struct {
		Server Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Port            string        `env:"PORT" envDefault:"8080" validate:"required"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	}

	// Tiles selects where tile geometry comes from.
	Tiles struct {
		Source            string  `env:"SOURCE" envDefault:"synth" validate:"oneof=synth http archive"`
		BaseURL           string  `env:"BASE_URL" validate:"required_if=Source http"`
		ArchivePath       string  `env:"ARCHIVE_PATH" validate:"required_if=Source archive"`
		RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"0" validate:"gte=0"`
		Burst             int     `env:"BURST" envDefault:"8" validate:"gte=0"`
		UserAgent         string  `env:"USER_AGENT" envDefault:"tilewindow/1.0"`
		// MapSettings is an optional YAML file, see LoadMapSettings.
		MapSettings string `env:"MAP_SETTINGS"`
	}

	Telemetry struct {
		Enabled     bool   `env:"ENABLED" envDefault:"false"`
		Endpoint    string `env:"EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
		Insecure    bool   `env:"EXPORTER_OTLP_INSECURE" envDefault:"true"`
		ServiceName string `env:"SERVICE_NAME" envDefault:"tilewindow"`
	}
)

// New reads .env files (when present) and the process environment.
func New(dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

type (
	// MapSettings describes the tile grid of one map and how viewers walk it.
	MapSettings struct {
		Name               string        `yaml:"name" validate:"required"`
		TileSize           Vec2          `yaml:"tile_size"`
		TileOffset         Offset        `yaml:"tile_offset"`
		ViewDistance       float64       `yaml:"view_distance" validate:"gte=0,ltefield=MaxViewDistance"`
		MaxViewDistance    float64       `yaml:"max_view_distance" validate:"gt=0"`
		MaxConcurrentLoads int           `yaml:"max_concurrent_loads" validate:"gte=0,lte=256"`
		LoadTimeout        time.Duration `yaml:"load_timeout" validate:"gte=0"`
		StartPosition      Vec3          `yaml:"start_position"`
	}

	Vec2 struct {
		X float64 `yaml:"x" validate:"gt=0"`
		Z float64 `yaml:"z" validate:"gt=0"`
	}

	Offset struct {
		X float64 `yaml:"x"`
		Z float64 `yaml:"z"`
	}

	Vec3 struct {
		X float64 `yaml:"x"`
		Y float64 `yaml:"y"`
		Z float64 `yaml:"z"`
	}
)

// DefaultMapSettings matches a BlueMap-style hires grid: 32 block tiles
// offset by 2 blocks.
func DefaultMapSettings() MapSettings {
	return MapSettings{
		Name:               "world",
		TileSize:           Vec2{X: 32, Z: 32},
		TileOffset:         Offset{X: 2, Z: 2},
		ViewDistance:       500,
		MaxViewDistance:    2000,
		MaxConcurrentLoads: 8,
		LoadTimeout:        30 * time.Second,
	}
}

// LoadMapSettings reads a YAML settings file over the defaults. An empty
// path yields the defaults.
func LoadMapSettings(path string) (MapSettings, error) {
	s := DefaultMapSettings()
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("map settings: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("map settings %s: %w", path, err)
	}
	if err := validator.New().Struct(s); err != nil {
		return s, fmt.Errorf("map settings %s: %w", path, err)
	}
	return s, nil
}

// Validate checks settings built in code.
func (s MapSettings) Validate() error {
	return validator.New().Struct(s)
}
