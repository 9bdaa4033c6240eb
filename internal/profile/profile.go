package profile

import (
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned by Validate for any configuration that cannot start the server.
var ErrInvalidConfig = errors.New("invalid configuration")

// Cache backend types. The aliases are accepted in config files and normalised on load.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"

	cacheTypeVolatileAlias  = "volatile"
	cacheTypeNetworkedAlias = "networked"
)

// Similarity metrics supported by the anomaly detector.
const (
	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
)

// EnvPrefix is the prefix of every environment override, e.g. REPAIRSENSE_SERVER_PORT.
const EnvPrefix = "repairsense"

// Profile is the configuration to start the repair classification server.
type Profile struct {
	Model      ModelConfig      `mapstructure:"model"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Server     ServerConfig     `mapstructure:"server"`

	// Version is the current version of server
	Version string `mapstructure:"-"`
}

// ModelConfig points at the trained classifier checkpoint.
type ModelConfig struct {
	WeightsPath      string  `mapstructure:"weights_path"`
	SoftmaxThreshold float64 `mapstructure:"softmax_threshold"`
}

// SimilarityConfig configures the anomaly detector.
type SimilarityConfig struct {
	DataPath          string  `mapstructure:"data_path"`
	ModelName         string  `mapstructure:"model_name"`
	DistanceThreshold float64 `mapstructure:"distance_threshold"`
	Metric            string  `mapstructure:"metric"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // openai, siliconflow, ollama
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// CacheConfig selects and configures the classification cache.
type CacheConfig struct {
	Enabled bool               `mapstructure:"enabled"`
	Type    string             `mapstructure:"type"`
	Redis   *RedisCacheConfig  `mapstructure:"redis"`
	Memory  *MemoryCacheConfig `mapstructure:"memory"`
}

// RedisCacheConfig holds the Redis connection configuration.
type RedisCacheConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	TTLHours       int           `mapstructure:"ttl_hours"`
	PoolSize       int           `mapstructure:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// MemoryCacheConfig holds the in-process cache limits.
type MemoryCacheConfig struct {
	MaxSize  int `mapstructure:"max_size"`
	TTLHours int `mapstructure:"ttl_hours"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Mode can be "prod" or "dev"
	Mode     string `mapstructure:"mode"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// RateLimit is the sustained number of requests per second allowed per client IP.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
	// MaxConcurrentInferences bounds the classify requests running against the models at once.
	MaxConcurrentInferences int64         `mapstructure:"max_concurrent_inferences"`
	ShutdownTimeout         time.Duration `mapstructure:"shutdown_timeout"`
	// TrustedProxies lists the CIDRs or IPs of reverse proxies whose
	// X-Forwarded-For header is trusted. Empty means the peer address is the client.
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
}

func (p *Profile) IsDev() bool {
	return p.Server.Mode != "prod"
}

// SetDefaults registers the default value of every optional key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "prod")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.max_concurrent_inferences", 8)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("model.softmax_threshold", 0.5)
	v.SetDefault("similarity.metric", MetricCosine)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "all-MiniLM-L6-v2")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.batch_size", 64)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.type", CacheTypeMemory)
}

// Load reads the profile from path (optional), REPAIRSENSE_* environment variables
// and any flags already bound to v, then validates it.
func Load(v *viper.Viper, path string) (*Profile, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, reflect.TypeOf(Profile{}), "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "unable to read config file %s", path)
		}
	}

	p := &Profile{}
	if err := v.Unmarshal(p); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// bindEnvs binds an environment variable to every leaf key of t so overrides
// apply even to keys missing from the config file. Sub-configs are pointers so
// an absent section stays nil; their keys are bound only when one of their
// variables is set.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		key, ok := fieldKey(t.Field(i), prefix)
		if !ok {
			continue
		}
		ft := t.Field(i).Type
		switch {
		case ft.Kind() == reflect.Pointer && ft.Elem().Kind() == reflect.Struct:
			keys := leafKeys(ft.Elem(), key)
			if !anyEnvSet(keys) {
				continue
			}
			for _, k := range keys {
				_ = v.BindEnv(k)
			}
		case ft.Kind() == reflect.Struct:
			bindEnvs(v, ft, key)
		default:
			_ = v.BindEnv(key)
		}
	}
}

func leafKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		key, ok := fieldKey(t.Field(i), prefix)
		if !ok {
			continue
		}
		ft := t.Field(i).Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			keys = append(keys, leafKeys(ft, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func fieldKey(f reflect.StructField, prefix string) (string, bool) {
	tag := f.Tag.Get("mapstructure")
	if tag == "" || tag == "-" {
		return "", false
	}
	if prefix == "" {
		return tag, true
	}
	return prefix + "." + tag, true
}

func anyEnvSet(keys []string) bool {
	for _, k := range keys {
		if _, ok := os.LookupEnv(EnvName(k)); ok {
			return true
		}
	}
	return false
}

// EnvName returns the environment variable overriding key, e.g. REPAIRSENSE_CACHE_MEMORY_MAX_SIZE.
func EnvName(key string) string {
	return strings.ToUpper(EnvPrefix + "_" + strings.ReplaceAll(key, ".", "_"))
}

// NormalizeCacheType maps the accepted aliases onto the canonical backend names.
func NormalizeCacheType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case CacheTypeMemory, cacheTypeVolatileAlias:
		return CacheTypeMemory
	case CacheTypeRedis, cacheTypeNetworkedAlias:
		return CacheTypeRedis
	default:
		return t
	}
}

// Validate normalises the profile and reports the first setting that prevents start-up.
func (p *Profile) Validate() error {
	if p.Server.Mode != "dev" && p.Server.Mode != "prod" {
		p.Server.Mode = "prod"
	}
	if p.Server.Port <= 0 || p.Server.Port > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "server.port %d out of range", p.Server.Port)
	}
	if _, err := p.Server.TrustedProxyNets(); err != nil {
		return err
	}

	if p.Model.WeightsPath == "" {
		return errors.Wrap(ErrInvalidConfig, "model.weights_path is required")
	}
	if p.Model.SoftmaxThreshold < 0 || p.Model.SoftmaxThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "model.softmax_threshold %v must be within [0, 1]", p.Model.SoftmaxThreshold)
	}

	if p.Similarity.DataPath == "" {
		return errors.Wrap(ErrInvalidConfig, "similarity.data_path is required")
	}
	if p.Similarity.Metric != MetricCosine && p.Similarity.Metric != MetricEuclidean {
		return errors.Wrapf(ErrInvalidConfig, "unsupported similarity.metric %q", p.Similarity.Metric)
	}
	if p.Similarity.ModelName == "" {
		p.Similarity.ModelName = p.Embedding.Model
	}

	return p.Cache.Validate()
}

// Validate checks the sub-config required by the selected cache type.
func (c *CacheConfig) Validate() error {
	c.Type = NormalizeCacheType(c.Type)
	if !c.Enabled {
		return nil
	}

	switch c.Type {
	case CacheTypeMemory:
		if c.Memory == nil {
			return errors.Wrap(ErrInvalidConfig, "cache.memory is required for the memory cache")
		}
	case CacheTypeRedis:
		if c.Redis == nil {
			return errors.Wrap(ErrInvalidConfig, "cache.redis is required for the redis cache")
		}
		if c.Redis.Host == "" || c.Redis.Port <= 0 {
			return errors.Wrap(ErrInvalidConfig, "cache.redis.host and cache.redis.port are required")
		}
		if c.Redis.TTLHours <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "cache.redis.ttl_hours %d must be positive", c.Redis.TTLHours)
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unsupported cache.type %q", c.Type)
	}

	// The memory section also serves as the fallback for an unreachable redis.
	if c.Memory != nil {
		if c.Memory.MaxSize <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "cache.memory.max_size %d must be positive", c.Memory.MaxSize)
		}
		if c.Memory.TTLHours <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "cache.memory.ttl_hours %d must be positive", c.Memory.TTLHours)
		}
	}
	return nil
}

// Addr returns the host:port of the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// TrustedProxyNets parses TrustedProxies; a bare IP is a single-address range.
func (s ServerConfig) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(s.TrustedProxies))
	for _, entry := range s.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "server.trusted_proxies entry %q is not an IP or CIDR", entry)
		}
		bits := 128
		if ip.To4() != nil {
			ip, bits = ip.To4(), 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

// Addr returns the host:port of the redis server.
func (r RedisCacheConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
