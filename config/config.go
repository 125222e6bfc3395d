// Package config loads the TOML configuration shared by the dsgctl commands.
//
//	dec_id   = "..."            # base58 dec app id
//	hasher   = "sha2-256"
//	balancer = "round_robin"
//
//	[router]
//	addr      = "127.0.0.1:1318"
//	codec     = "binary"
//	pool_size = 4
//	heartbeat = "30s"
//
//	[registry]
//	kind      = "static"        # or "etcd"
//	endpoints = ["127.0.0.1:2379"]
//	[[registry.devices]]
//	device_id = "..."
//	addr      = "10.0.0.7:1318"
//
//	[server]
//	listen    = ":1318"
//	device_id = "..."
//
//	[log]
//	level = "info"
package config

import (
	"dsg-rpc/codec"
	"dsg-rpc/loadbalance"
	"dsg-rpc/logging"
	"dsg-rpc/object"
	"dsg-rpc/registry"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
)

const (
	RegistryNone   = ""
	RegistryStatic = "static"
	RegistryEtcd   = "etcd"
)

// Config is the resolved configuration.
type Config struct {
	DecID    object.ID
	Hasher   string
	Balancer string
	Router   RouterConfig
	Registry RegistryConfig
	Server   ServerConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

type RouterConfig struct {
	Addr      string
	Codec     codec.CodecType
	PoolSize  int
	Heartbeat time.Duration
}

type RegistryConfig struct {
	Kind        string
	Endpoints   []string
	DialTimeout time.Duration
	Devices     []registry.DeviceRecord
}

type ServerConfig struct {
	Listen    string
	Advertise string
	DeviceID  object.ID
	OwnerID   object.ID
	TTL       int64
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

type LogConfig struct {
	Level   string
	NoColor bool
}

type MetricsConfig struct {
	Listen string // empty disables the /metrics endpoint
}

type fileConfig struct {
	DecID    string       `toml:"dec_id"`
	Hasher   string       `toml:"hasher"`
	Balancer string       `toml:"balancer"`
	Router   fileRouter   `toml:"router"`
	Registry fileRegistry `toml:"registry"`
	Server   fileServer   `toml:"server"`
	Log      fileLog      `toml:"log"`
	Metrics  fileMetrics  `toml:"metrics"`
}

type fileRouter struct {
	Addr      string `toml:"addr"`
	Codec     string `toml:"codec"`
	PoolSize  int    `toml:"pool_size"`
	Heartbeat string `toml:"heartbeat"`
}

type fileRegistry struct {
	Kind        string       `toml:"kind"`
	Endpoints   []string     `toml:"endpoints"`
	DialTimeout string       `toml:"dial_timeout"`
	Devices     []fileDevice `toml:"devices"`
}

type fileDevice struct {
	DeviceID string `toml:"device_id"`
	Addr     string `toml:"addr"`
	Weight   int    `toml:"weight"`
}

type fileServer struct {
	Listen    string  `toml:"listen"`
	Advertise string  `toml:"advertise"`
	DeviceID  string  `toml:"device_id"`
	OwnerID   string  `toml:"owner_id"`
	TTL       int64   `toml:"ttl"`
	Timeout   string  `toml:"timeout"`
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

type fileLog struct {
	Level   string `toml:"level"`
	NoColor bool   `toml:"no_color"`
}

type fileMetrics struct {
	Listen string `toml:"listen"`
}

// Default returns the configuration used for everything a file leaves out.
func Default() Config {
	return Config{
		Hasher:   "sha2-256",
		Balancer: "round_robin",
		Router: RouterConfig{
			Addr:      "127.0.0.1:1318",
			Codec:     codec.CodecTypeBinary,
			PoolSize:  4,
			Heartbeat: 30 * time.Second,
		},
		Registry: RegistryConfig{
			DialTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Listen:    ":1318",
			TTL:       10,
			Timeout:   10 * time.Second,
			RateLimit: 1000,
			Burst:     100,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg, err := resolve(raw, meta)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse is Load for configuration text.
func Parse(text string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg, err := resolve(raw, meta)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolve applies the keys present in the file over Default. Parse errors of
// individual values are collected so one run reports all of them.
func resolve(raw fileConfig, meta toml.MetaData) (Config, error) {
	cfg := Default()
	var errs *multierror.Error

	parseID := func(key, value string, dst *object.ID) {
		if !meta.IsDefined(strings.Split(key, ".")...) {
			return
		}
		id, err := object.ParseID(strings.TrimSpace(value))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = id
	}
	parseDuration := func(key, value string, dst *time.Duration) {
		if !meta.IsDefined(strings.Split(key, ".")...) {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	parseID("dec_id", raw.DecID, &cfg.DecID)
	if meta.IsDefined("hasher") {
		cfg.Hasher = strings.TrimSpace(raw.Hasher)
	}
	if meta.IsDefined("balancer") {
		cfg.Balancer = strings.TrimSpace(raw.Balancer)
	}

	if meta.IsDefined("router", "addr") {
		cfg.Router.Addr = strings.TrimSpace(raw.Router.Addr)
	}
	if meta.IsDefined("router", "codec") {
		ct, err := codec.ParseCodecType(raw.Router.Codec)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("router.codec: %w", err))
		} else {
			cfg.Router.Codec = ct
		}
	}
	if meta.IsDefined("router", "pool_size") {
		cfg.Router.PoolSize = raw.Router.PoolSize
	}
	parseDuration("router.heartbeat", raw.Router.Heartbeat, &cfg.Router.Heartbeat)

	if meta.IsDefined("registry", "kind") {
		cfg.Registry.Kind = strings.ToLower(strings.TrimSpace(raw.Registry.Kind))
	}
	if meta.IsDefined("registry", "endpoints") {
		cfg.Registry.Endpoints = normalizeList(raw.Registry.Endpoints)
	}
	parseDuration("registry.dial_timeout", raw.Registry.DialTimeout, &cfg.Registry.DialTimeout)
	for i, dev := range raw.Registry.Devices {
		id, err := object.ParseID(strings.TrimSpace(dev.DeviceID))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("registry.devices[%d].device_id: %w", i, err))
			continue
		}
		cfg.Registry.Devices = append(cfg.Registry.Devices, registry.DeviceRecord{
			DeviceID: id,
			Addr:     strings.TrimSpace(dev.Addr),
			Weight:   dev.Weight,
		})
	}

	if meta.IsDefined("server", "listen") {
		cfg.Server.Listen = strings.TrimSpace(raw.Server.Listen)
	}
	if meta.IsDefined("server", "advertise") {
		cfg.Server.Advertise = strings.TrimSpace(raw.Server.Advertise)
	}
	parseID("server.device_id", raw.Server.DeviceID, &cfg.Server.DeviceID)
	parseID("server.owner_id", raw.Server.OwnerID, &cfg.Server.OwnerID)
	if meta.IsDefined("server", "ttl") {
		cfg.Server.TTL = raw.Server.TTL
	}
	parseDuration("server.timeout", raw.Server.Timeout, &cfg.Server.Timeout)
	if meta.IsDefined("server", "rate_limit") {
		cfg.Server.RateLimit = raw.Server.RateLimit
	}
	if meta.IsDefined("server", "burst") {
		cfg.Server.Burst = raw.Server.Burst
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	if meta.IsDefined("metrics", "listen") {
		cfg.Metrics.Listen = strings.TrimSpace(raw.Metrics.Listen)
	}

	return cfg, errs.ErrorOrNil()
}

// Validate reports every inconsistency at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	if _, err := object.HasherByName(c.Hasher); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("hasher: %w", err))
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("balancer: %w", err))
	}
	if !c.Router.Codec.Valid() {
		errs = multierror.Append(errs, fmt.Errorf("router.codec: unknown codec %d", c.Router.Codec))
	}
	if c.Router.PoolSize <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("router.pool_size must be positive, got %d", c.Router.PoolSize))
	}
	if c.Router.Heartbeat < 0 {
		errs = multierror.Append(errs, fmt.Errorf("router.heartbeat must not be negative"))
	}
	switch c.Registry.Kind {
	case RegistryNone:
	case RegistryStatic:
		for i, dev := range c.Registry.Devices {
			if dev.Addr == "" {
				errs = multierror.Append(errs, fmt.Errorf("registry.devices[%d].addr is required", i))
			}
		}
	case RegistryEtcd:
		if len(c.Registry.Endpoints) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("registry.endpoints is required for etcd"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("registry.kind: unknown kind %q", c.Registry.Kind))
	}
	if c.Server.TTL <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("server.ttl must be positive, got %d", c.Server.TTL))
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		errs = multierror.Append(errs, fmt.Errorf("server.rate_limit and server.burst must not be negative"))
	}
	if c.Log.Level != "" {
		if _, ok := logging.ParseLevel(c.Log.Level); !ok {
			errs = multierror.Append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
		}
	}
	return errs.ErrorOrNil()
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Open builds the registry the configuration names; nil for RegistryNone.
func (r RegistryConfig) Open() (registry.Registry, error) {
	switch r.Kind {
	case RegistryStatic:
		return registry.NewStaticRegistry(r.Devices...), nil
	case RegistryEtcd:
		return registry.NewEtcdRegistry(r.Endpoints, r.DialTimeout)
	case RegistryNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("registry.kind: unknown kind %q", r.Kind)
	}
}
