// Package config loads process configuration from a YAML file with
// environment-variable overrides and coded defaults, the same three-layer
// scheme used across the hub and node binaries.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration for both the hub and node processes.
// A single schema covers both roles; a role only reads the sections it
// needs (e.g. the node ignores Registry, the hub ignores TaskCache).
type Config struct {
	Mode     string         `yaml:"mode"` // "hub", "node", "development", "production" — free-form profile name
	Server   ServerConfig   `yaml:"server"`
	Keys     KeysConfig     `yaml:"keys"`
	Hub      HubConfig      `yaml:"hub"`
	Registry RegistryConfig `yaml:"registry"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Cache    TaskCacheConfig `yaml:"task_cache"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	RPCPool  RPCPoolConfig  `yaml:"rpc_pool"`
	Proving  ProvingConfig  `yaml:"proving"`
	Redis    RedisConfig    `yaml:"redis"`
	Explorer ExplorerConfig `yaml:"explorer"`
	Proxy    string         `yaml:"outbound_proxy_url"`
}

// ExplorerConfig locates the external Explorer service the hub relays
// signed results and verifier updates to.
type ExplorerConfig struct {
	APIURL        string `yaml:"api_url"`
	PublicKeyPath string `yaml:"public_key_path"`
}

// ServerConfig describes the two endpoints a prover node exposes and the
// single HTTP endpoint a hub exposes.
type ServerConfig struct {
	Interface       string `yaml:"interface"`
	HTTPPort        string `yaml:"http_port"`
	RPCPort         string `yaml:"rpc_port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// KeysConfig locates the PEM key-pair files used by the RSA envelope.
// A hub loads Session*; a node loads Crypto* (to decrypt client payloads)
// and SessionPublic (to verify the hub's dispatch signature).
type KeysConfig struct {
	SessionPrivatePath string `yaml:"session_private_path"`
	SessionPublicPath  string `yaml:"session_public_path"`
	CryptoPrivatePath  string `yaml:"crypto_private_path"`
	CryptoPublicPath   string `yaml:"crypto_public_path"`
}

// HubConfig is consulted by node processes to reach the hub.
type HubConfig struct {
	APIURL string `yaml:"api_url"`
}

// RegistryConfig configures the hub-side Node Registry (C4) and its
// periodic sweeper (C12).
type RegistryConfig struct {
	InactivityTimeoutSec int `yaml:"inactivity_timeout_sec"`
	SweepIntervalSec     int `yaml:"sweep_interval_sec"`
	SampleSize           int `yaml:"sample_size"`
}

// DispatchConfig configures the Dispatch Engine (C6) and Liveness Probe (C5).
type DispatchConfig struct {
	MaxSampleAttempts int `yaml:"max_sample_attempts"`
	RetrySleepMs      int `yaml:"retry_sleep_ms"`
	LivenessTimeoutSec int `yaml:"liveness_timeout_sec"`
}

// TaskCacheConfig configures the node-side Task Cache (C3).
type TaskCacheConfig struct {
	Path              string `yaml:"path"`
	DefaultTTLSec     int    `yaml:"default_ttl_sec"`
	FlushIntervalSec  int    `yaml:"flush_interval_sec"`
}

// HeartbeatConfig configures the node-side Heartbeat Loop (C8).
type HeartbeatConfig struct {
	IntervalSec int `yaml:"interval_sec"`
}

// RPCPoolConfig configures the RPC Connection Pool (C13) to proving backends.
type RPCPoolConfig struct {
	MaxConnections      int `yaml:"max_connections"`
	KeepaliveSec        int `yaml:"keepalive_sec"`
	KeepaliveTimeoutSec int `yaml:"keepalive_timeout_sec"`
	MaxMessageBytes     int `yaml:"max_message_bytes"`
}

// ProvingConfig configures the node-side Proving Dispatcher (C10): backend
// addresses by prover id, and the on-disk maps it consults (project tag to
// (name, verifiers), and OAuth provider to validator).
type ProvingConfig struct {
	BackendAddrs         map[string]string `yaml:"backend_addrs"`
	ProjectMapPath       string            `yaml:"project_map_path"`
	ProviderResolverPath string            `yaml:"provider_resolver_path"`
	RPCTimeoutSec        int               `yaml:"rpc_timeout_sec"`
	RPCMaxRetries        int               `yaml:"rpc_max_retries"`
	SPIFFESocketPath     string            `yaml:"spiffe_socket_path"`
}

// RedisConfig optionally enables a cross-pod mirror of the Node Registry.
// The in-memory registry remains authoritative; Redis is never read back
// to answer a sample() or add() call — see internal/registry/mirror.go.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide config singleton, loading it on first call
// from CONFIG_PATH (default "config.yaml") plus environment overrides.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// LoadConfig reads and decodes a YAML config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Mode = getEnv("MODE", c.Mode)

	c.Server.Interface = getEnv("OCX_INTERFACE", c.Server.Interface)
	c.Server.HTTPPort = getEnv("HTTP_PORT", c.Server.HTTPPort)
	c.Server.RPCPort = getEnv("RPC_PORT", c.Server.RPCPort)
	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}

	c.Keys.SessionPrivatePath = getEnv("SESSION_PRIVATE_KEY_PATH", c.Keys.SessionPrivatePath)
	c.Keys.SessionPublicPath = getEnv("SESSION_PUBLIC_KEY_PATH", c.Keys.SessionPublicPath)
	c.Keys.CryptoPrivatePath = getEnv("CRYPTO_PRIVATE_KEY_PATH", c.Keys.CryptoPrivatePath)
	c.Keys.CryptoPublicPath = getEnv("CRYPTO_PUBLIC_KEY_PATH", c.Keys.CryptoPublicPath)

	c.Hub.APIURL = getEnv("HUB_API_URL", c.Hub.APIURL)

	if v := getEnvInt("REGISTRY_INACTIVITY_TIMEOUT_SEC", 0); v > 0 {
		c.Registry.InactivityTimeoutSec = v
	}
	if v := getEnvInt("REGISTRY_SWEEP_INTERVAL_SEC", 0); v > 0 {
		c.Registry.SweepIntervalSec = v
	}
	if v := getEnvInt("REGISTRY_SAMPLE_SIZE", 0); v > 0 {
		c.Registry.SampleSize = v
	}

	if v := getEnvInt("DISPATCH_MAX_SAMPLE_ATTEMPTS", 0); v > 0 {
		c.Dispatch.MaxSampleAttempts = v
	}
	if v := getEnvInt("DISPATCH_RETRY_SLEEP_MS", 0); v > 0 {
		c.Dispatch.RetrySleepMs = v
	}
	if v := getEnvInt("DISPATCH_LIVENESS_TIMEOUT_SEC", 0); v > 0 {
		c.Dispatch.LivenessTimeoutSec = v
	}

	c.Cache.Path = getEnv("TASK_CACHE_PATH", c.Cache.Path)
	if v := getEnvInt("TASK_CACHE_DEFAULT_TTL_SEC", 0); v > 0 {
		c.Cache.DefaultTTLSec = v
	}
	if v := getEnvInt("TASK_CACHE_FLUSH_INTERVAL_SEC", 0); v > 0 {
		c.Cache.FlushIntervalSec = v
	}

	if v := getEnvInt("HEARTBEAT_INTERVAL_SEC", 0); v > 0 {
		c.Heartbeat.IntervalSec = v
	}

	if v := getEnvInt("RPC_POOL_MAX_CONNECTIONS", 0); v > 0 {
		c.RPCPool.MaxConnections = v
	}
	if v := getEnvInt("RPC_POOL_KEEPALIVE_SEC", 0); v > 0 {
		c.RPCPool.KeepaliveSec = v
	}
	if v := getEnvInt("RPC_POOL_KEEPALIVE_TIMEOUT_SEC", 0); v > 0 {
		c.RPCPool.KeepaliveTimeoutSec = v
	}
	if v := getEnvInt("RPC_POOL_MAX_MESSAGE_BYTES", 0); v > 0 {
		c.RPCPool.MaxMessageBytes = v
	}

	c.Proving.ProjectMapPath = getEnv("PROVING_PROJECT_MAP_PATH", c.Proving.ProjectMapPath)
	c.Proving.ProviderResolverPath = getEnv("PROVING_PROVIDER_RESOLVER_PATH", c.Proving.ProviderResolverPath)
	c.Proving.SPIFFESocketPath = getEnv("SPIFFE_ENDPOINT_SOCKET", c.Proving.SPIFFESocketPath)
	if v := getEnvInt("PROVING_RPC_TIMEOUT_SEC", 0); v > 0 {
		c.Proving.RPCTimeoutSec = v
	}
	if v := getEnvInt("PROVING_RPC_MAX_RETRIES", -1); v >= 0 {
		c.Proving.RPCMaxRetries = v
	}
	if addrs := getEnv("PROVING_BACKEND_ADDRS", ""); addrs != "" {
		if c.Proving.BackendAddrs == nil {
			c.Proving.BackendAddrs = make(map[string]string)
		}
		for _, pair := range strings.Split(addrs, ",") {
			kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(kv) == 2 {
				c.Proving.BackendAddrs[kv[0]] = kv[1]
			}
		}
	}

	c.Redis.Enabled = getEnvBool("OCX_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("REDIS_DB", 0); v > 0 {
		c.Redis.DB = v
	}

	c.Explorer.APIURL = getEnv("EXPLORER_API_URL", c.Explorer.APIURL)
	c.Explorer.PublicKeyPath = getEnv("EXPLORER_PUBLIC_KEY_PATH", c.Explorer.PublicKeyPath)

	c.Proxy = getEnv("OUTBOUND_PROXY_URL", c.Proxy)
}

// applyDefaults fills in zero-valued fields with the values spec.md names.
func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == "" {
		c.Server.HTTPPort = "8080"
	}
	if c.Server.RPCPort == "" {
		c.Server.RPCPort = "50051"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}

	if c.Registry.InactivityTimeoutSec == 0 {
		c.Registry.InactivityTimeoutSec = 30
	}
	if c.Registry.SweepIntervalSec == 0 {
		c.Registry.SweepIntervalSec = 60
	}
	if c.Registry.SampleSize == 0 {
		c.Registry.SampleSize = 4
	}

	if c.Dispatch.MaxSampleAttempts == 0 {
		c.Dispatch.MaxSampleAttempts = 3
	}
	if c.Dispatch.RetrySleepMs == 0 {
		c.Dispatch.RetrySleepMs = 100
	}
	if c.Dispatch.LivenessTimeoutSec == 0 {
		c.Dispatch.LivenessTimeoutSec = 6
	}

	if c.Cache.Path == "" {
		c.Cache.Path = "task_cache.bin"
	}
	if c.Cache.DefaultTTLSec == 0 {
		c.Cache.DefaultTTLSec = 60
	}
	if c.Cache.FlushIntervalSec == 0 {
		c.Cache.FlushIntervalSec = 5
	}

	if c.Heartbeat.IntervalSec == 0 {
		c.Heartbeat.IntervalSec = 10
	}

	if c.RPCPool.MaxConnections == 0 {
		c.RPCPool.MaxConnections = 100
	}
	if c.RPCPool.KeepaliveSec == 0 {
		c.RPCPool.KeepaliveSec = 60
	}
	if c.RPCPool.KeepaliveTimeoutSec == 0 {
		c.RPCPool.KeepaliveTimeoutSec = 20
	}
	if c.RPCPool.MaxMessageBytes == 0 {
		c.RPCPool.MaxMessageBytes = 64 * 1024 * 1024
	}

	if c.Proving.RPCTimeoutSec == 0 {
		c.Proving.RPCTimeoutSec = 30
	}
	if c.Proving.RPCMaxRetries == 0 {
		c.Proving.RPCMaxRetries = 2
	}
}

// IsProduction reports whether Mode names a production profile.
func (c *Config) IsProduction() bool {
	return c.Mode == "production"
}

// IsDevelopment reports whether Mode names a development profile.
func (c *Config) IsDevelopment() bool {
	return c.Mode == "development" || c.Mode == ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
