// Package config loads pce_config.toml.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"pce/common"
	"pce/etcd"
	"pce/pathstore"
	"pce/topology"
)

const DefaultPath = "pce_config.toml"

var ErrInvalidConfig = errors.New("invalid configuration")

var validate *validator.Validate

func init() {
	validate = validator.New()
}

type Config struct {
	Log         LogConfig         `toml:"log"`
	Topology    TopologyConfig    `toml:"topology"`
	PathStore   PathStoreConfig   `toml:"path_store"`
	Feasibility FeasibilityConfig `toml:"feasibility"`
	Etcd        etcd.EtcdConfig   `toml:"etcd"`
	Solver      SolverConfig      `toml:"solver"`
	Worker      WorkerConfig      `toml:"worker"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

type LogConfig struct {
	Dir        string `toml:"dir"`
	File       string `toml:"file"`
	Level      string `toml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	MaxSize    int    `toml:"max_size" validate:"min=1"` // MB
	MaxBackups int    `toml:"max_backups" validate:"min=0"`
	MaxAge     int    `toml:"max_age" validate:"min=0"` // days
	Compress   bool   `toml:"compress"`
}

type TopologyConfig struct {
	Source          string                  `toml:"source" validate:"oneof=file mysql"`
	Path            string                  `toml:"path" validate:"required_if=Source file"`
	RefreshInterval int                     `toml:"refresh_interval" validate:"min=0"` // seconds, 0 disables
	Database        topology.DatabaseConfig `toml:"database"`
}

type PathStoreConfig struct {
	Backend string                `toml:"backend" validate:"oneof=memory etcd redis"`
	Redis   pathstore.RedisConfig `toml:"redis"`
}

type FeasibilityConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address" validate:"required_if=Enabled true"`
	Timeout int    `toml:"timeout" validate:"min=1"` // seconds
}

// SolverConfig sizes the pool of the per-wavelength searches. Zero workers
// keeps them sequential.
type SolverConfig struct {
	Pool common.PoolConfig `toml:"pool"`
}

type WorkerConfig struct {
	Pool               common.PoolConfig `toml:"pool"`
	MaxConflictRetries int               `toml:"max_conflict_retries" validate:"min=0"`
}

type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr" validate:"required"`
}

// Load decodes path, fills defaults for what it leaves out and validates the
// result.
func Load(path string) (*Config, error) {
	var config Config
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warningf("Unknown keys in %s ignored: %v", path, undecoded)
	}
	applyDefaults(&config, md)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(c *Config, md toml.MetaData) {
	if c.Log.Dir == "" {
		c.Log.Dir = "./logs"
	}
	if c.Log.File == "" {
		c.Log.File = "pce.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 100
	}
	if !md.IsDefined("log", "max_backups") {
		c.Log.MaxBackups = 7
	}
	if !md.IsDefined("log", "max_age") {
		c.Log.MaxAge = 30
	}
	if !md.IsDefined("log", "compress") {
		c.Log.Compress = true
	}

	if c.Topology.Source == "" {
		log.Warningf("Topology source not specified in config, using file")
		c.Topology.Source = "file"
	}
	if c.Topology.Source == "file" && c.Topology.Path == "" {
		log.Warningf("Topology path not specified in config, using topology.yaml")
		c.Topology.Path = "topology.yaml"
	}
	if !md.IsDefined("topology", "refresh_interval") {
		c.Topology.RefreshInterval = 60
	}

	if c.PathStore.Backend == "" {
		c.PathStore.Backend = "memory"
	}
	if c.PathStore.Redis.Address == "" {
		c.PathStore.Redis.Address = "127.0.0.1:6379"
	}
	if c.PathStore.Redis.MaxIdle == 0 {
		c.PathStore.Redis.MaxIdle = 4
	}
	if c.PathStore.Redis.IdleTimeout == 0 {
		c.PathStore.Redis.IdleTimeout = 240
	}

	if c.Feasibility.Timeout == 0 {
		c.Feasibility.Timeout = 10
	}

	if len(c.Etcd.Endpoints) == 0 {
		c.Etcd.Endpoints = etcd.DefaultEtcdConfig().Endpoints
	}
	if c.Etcd.DialTimeout == 0 {
		c.Etcd.DialTimeout = etcd.DefaultEtcdConfig().DialTimeout
	}

	if c.Worker.Pool.MaxWorkers == 0 {
		c.Worker.Pool.MaxWorkers = 8
	}
	if !md.IsDefined("worker", "max_conflict_retries") {
		c.Worker.MaxConflictRetries = etcd.DefaultMaxConflictRetries
	}

	if c.Metrics.ListenAddr == "" {
		log.Warningf("Metrics listen_addr not specified in config, using 127.0.0.1:9464")
		c.Metrics.ListenAddr = "127.0.0.1:9464"
	}
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Topology.Source == "mysql" && c.Topology.Database.DBName == "" {
		return fmt.Errorf("%w: topology.database.dbname is required for the mysql source", ErrInvalidConfig)
	}
	if c.Solver.Pool.MaxWorkers < 0 || c.Worker.Pool.MaxWorkers < 0 {
		return fmt.Errorf("%w: pool max_workers cannot be negative", ErrInvalidConfig)
	}
	if c.PathStore.Backend == "redis" && strings.TrimSpace(c.PathStore.Redis.Address) == "" {
		return fmt.Errorf("%w: path_store.redis.address is required for the redis backend", ErrInvalidConfig)
	}
	return nil
}
