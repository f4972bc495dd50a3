// Package config handles configuration loading and shared settings structures.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

// Config represents the root configuration file structure.
type Config struct {
	Store  Store  `yaml:"store" json:"store"`
	Seed   Seed   `yaml:"seed" json:"seed"`
	Limits Limits `yaml:"limits" json:"limits"`
	Writer Writer `yaml:"writer" json:"writer"`
}

// Store selects and configures the durable key-value backend.
type Store struct {
	Driver   string   `yaml:"driver" json:"driver"`
	Path     string   `yaml:"path,omitempty" json:"path,omitempty"` // file driver root directory
	Redis    Redis    `yaml:"redis,omitempty" json:"redis,omitempty"`
	Postgres Postgres `yaml:"postgres,omitempty" json:"postgres,omitempty"`
	S3       S3       `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// Redis holds connection settings for the redis driver.
type Redis struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password,omitempty" json:"-"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty"`
}

// Postgres holds connection settings for the postgres driver.
type Postgres struct {
	DSN   string `yaml:"dsn" json:"-"`
	Table string `yaml:"table,omitempty" json:"table,omitempty"`
}

// S3 holds connection settings for the s3 driver.
type S3 struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty" json:"use_ssl,omitempty"`
}

// Seed points at the markup document ingested on first start.
type Seed struct {
	Source string `yaml:"source,omitempty" json:"source,omitempty"` // file path or http(s) URL
}

// Limits are the advisory thresholds for derived metrics.
type Limits struct {
	PolylineLength float64 `yaml:"polyline_length" json:"polyline_length"` // meters
	PolygonArea    float64 `yaml:"polygon_area" json:"polygon_area"`       // square meters
}

// Writer tunes the asynchronous persistence queue.
type Writer struct {
	Queue      int           `yaml:"queue" json:"queue"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: Store{
			Driver: DriverFile,
			Path:   "data",
			Redis:  Redis{Addr: "127.0.0.1:6379", Prefix: "geoshapes"},
			Postgres: Postgres{
				Table: "shape_records",
			},
			S3: S3{Bucket: "geoshapes"},
		},
		Limits: Limits{
			PolylineLength: 2000,
			PolygonArea:    1_000_000,
		},
		Writer: Writer{
			Queue:      256,
			RetryDelay: 200 * time.Millisecond,
		},
	}
}

// Load reads and parses the YAML configuration file from the specified path.
// Values missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) normalize() {
	def := Default()
	if c.Store.Driver == "" {
		c.Store.Driver = def.Store.Driver
	}
	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = def.Store.Redis.Prefix
	}
	if c.Store.Postgres.Table == "" {
		c.Store.Postgres.Table = def.Store.Postgres.Table
	}
	if c.Limits.PolylineLength <= 0 {
		c.Limits.PolylineLength = def.Limits.PolylineLength
	}
	if c.Limits.PolygonArea <= 0 {
		c.Limits.PolygonArea = def.Limits.PolygonArea
	}
	if c.Writer.Queue <= 0 {
		c.Writer.Queue = def.Writer.Queue
	}
	if c.Writer.RetryDelay < 0 {
		c.Writer.RetryDelay = def.Writer.RetryDelay
	}
}
