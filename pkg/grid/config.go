package grid

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	BackendEmbedded = "embedded"
	BackendRedis    = "redis"

	defaultPartitions = 64
	defaultKeyPrefix  = "gridcache"
)

// Config selects and configures the driver a Runtime runs on.
type Config struct {
	Backend  string         `yaml:"backend"`
	Embedded EmbeddedConfig `yaml:"embedded"`
	Redis    RedisConfig    `yaml:"redis"`
}

// EmbeddedConfig configures the in-process grid node.
type EmbeddedConfig struct {
	// Partitions is the default partition count for maps whose configuration does not set one.
	Partitions int `yaml:"partitions"`
}

// RedisConfig configures the connection to a redis deployment acting as the grid.
type RedisConfig struct {
	// Endpoint is a comma separated list of host:port. More than one address selects cluster mode
	// unless MasterName is set.
	Endpoint   string        `yaml:"endpoint"`
	MasterName string        `yaml:"master_name"`
	DB         int           `yaml:"db"`
	Password   string        `yaml:"password"`
	Timeout    time.Duration `yaml:"timeout"`
	PoolSize   int           `yaml:"pool_size"`
	KeyPrefix  string        `yaml:"key_prefix"`
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Backend, flagName(prefix, "grid.backend"), BackendEmbedded, "Grid backend to start or attach to (embedded, redis).")
	f.IntVar(&cfg.Embedded.Partitions, flagName(prefix, "grid.embedded.partitions"), defaultPartitions, "Default number of partitions per map on the embedded node.")
	cfg.Redis.RegisterFlagsWithPrefix(flagName(prefix, "grid.redis"), f)
}

// RegisterFlagsWithPrefix adds the flags required to config this to the given FlagSet.
func (cfg *RedisConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Endpoint, prefix+".endpoint", "", "Redis endpoint(s), comma separated.")
	f.StringVar(&cfg.MasterName, prefix+".master-name", "", "Redis sentinel master name.")
	f.IntVar(&cfg.DB, prefix+".db", 0, "Redis database index.")
	f.StringVar(&cfg.Password, prefix+".password", "", "Redis password.")
	f.DurationVar(&cfg.Timeout, prefix+".timeout", 500*time.Millisecond, "Maximum time to wait before giving up on redis requests.")
	f.IntVar(&cfg.PoolSize, prefix+".pool-size", 0, "Maximum number of connections in the pool, 0 uses the client default.")
	f.StringVar(&cfg.KeyPrefix, prefix+".key-prefix", defaultKeyPrefix, "Prefix of the redis hash backing each map.")
}

// Validate checks the config.
func (cfg *Config) Validate() error {
	switch cfg.Backend {
	case BackendEmbedded:
		if cfg.Embedded.Partitions <= 0 {
			return errors.New("embedded grid requires a positive partition count")
		}
	case BackendRedis:
		if len(cfg.Redis.addrs()) == 0 {
			return errors.New("redis grid requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown grid backend %q", cfg.Backend)
	}
	return nil
}

func (cfg *RedisConfig) addrs() []string {
	var addrs []string
	for _, a := range strings.Split(cfg.Endpoint, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func flagName(prefix, option string) string {
	if len(prefix) > 0 {
		return prefix + "." + option
	}
	return option
}
