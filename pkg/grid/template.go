package grid

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTemplateFile is the conventional location of the template file, relative to the grid home.
	DefaultTemplateFile = "config/default-config.yaml"
	// DefaultTemplateName is the template that carries the base settings for query caches.
	DefaultTemplateName = "template-cache"
)

const (
	CacheModePartitioned CacheMode = "partitioned"
	CacheModeReplicated  CacheMode = "replicated"
	CacheModeLocal       CacheMode = "local"
)

// CacheMode is how a map's entries are spread over the grid.
type CacheMode string

// CacheConfig describes one named map.
type CacheConfig struct {
	Name              string    `yaml:"name,omitempty"`
	CacheMode         CacheMode `yaml:"cache_mode,omitempty"`
	Backups           int       `yaml:"backups,omitempty"`
	Partitions        int       `yaml:"partitions,omitempty"`
	StatisticsEnabled bool      `yaml:"statistics_enabled,omitempty"`

	EvictionPolicy *EvictionPolicyConfig `yaml:"eviction_policy,omitempty"`
	CacheLoader    *FactoryConfig        `yaml:"cache_loader,omitempty"`
	CacheWriter    *FactoryConfig        `yaml:"cache_writer,omitempty"`
}

// EvictionPolicyConfig bounds the number of entries a map keeps.
type EvictionPolicyConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// FactoryConfig references a read-through or write-through factory by name.
type FactoryConfig struct {
	Factory    string            `yaml:"factory"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// DefaultCacheConfig is the bare configuration used when no template applies.
func DefaultCacheConfig(name string) CacheConfig {
	return CacheConfig{Name: name}
}

// Derive clones cfg for the map called name. Eviction, loading and writing are forced off.
func (cfg CacheConfig) Derive(name string) CacheConfig {
	derived := cfg
	derived.Name = name
	derived.EvictionPolicy = nil
	derived.CacheLoader = nil
	derived.CacheWriter = nil
	return derived
}

// Validate checks the config.
func (cfg CacheConfig) Validate() error {
	if cfg.Name == "" {
		return errors.New("cache configuration requires a name")
	}
	switch cfg.CacheMode {
	case "", CacheModePartitioned, CacheModeReplicated, CacheModeLocal:
	default:
		return fmt.Errorf("unknown cache mode %q for cache %s", cfg.CacheMode, cfg.Name)
	}
	if cfg.Backups < 0 {
		return fmt.Errorf("negative backups for cache %s", cfg.Name)
	}
	if cfg.Partitions < 0 {
		return fmt.Errorf("negative partitions for cache %s", cfg.Name)
	}
	if cfg.EvictionPolicy != nil && cfg.EvictionPolicy.MaxEntries <= 0 {
		return fmt.Errorf("eviction policy for cache %s requires positive max_entries", cfg.Name)
	}
	if cfg.CacheLoader != nil || cfg.CacheWriter != nil {
		return fmt.Errorf("cache %s: %w", cfg.Name, ErrUnsupportedFactory)
	}
	return nil
}

// TemplateFile is the parsed template resource.
type TemplateFile struct {
	Templates map[string]CacheConfig `yaml:"templates"`
}

// LoadTemplateFile reads and strictly decodes the template file at path.
func LoadTemplateFile(path string, expandEnv bool) (*TemplateFile, error) {
	buff, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}

	if expandEnv {
		s, err := envsubst.EvalEnv(string(buff))
		if err != nil {
			return nil, fmt.Errorf("failed to expand env vars from template file %s: %w", path, err)
		}
		buff = []byte(s)
	}

	tf := &TemplateFile{}
	dec := yaml.NewDecoder(bytes.NewReader(buff))
	dec.KnownFields(true)
	if err := dec.Decode(tf); err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
	}

	return tf, nil
}

// TemplateOutcome tells whether a template was used to build a cache configuration.
type TemplateOutcome int

const (
	TemplateFound TemplateOutcome = iota
	TemplateMissing
)

func (o TemplateOutcome) String() string {
	switch o {
	case TemplateFound:
		return "found"
	case TemplateMissing:
		return "missing"
	default:
		return fmt.Sprintf("TemplateOutcome(%d)", int(o))
	}
}

// Resolution is the configuration picked for a cache id.
type Resolution struct {
	Outcome TemplateOutcome
	Config  CacheConfig
	// Reason is set when Outcome is TemplateMissing.
	Reason error
}

// ResolveTemplate builds the configuration for the map called id from the template name in the
// file at path. A missing or malformed file, or a missing template, resolves to DefaultCacheConfig.
func ResolveTemplate(path, name, id string, expandEnv bool) Resolution {
	tf, err := LoadTemplateFile(path, expandEnv)
	if err != nil {
		return Resolution{Outcome: TemplateMissing, Config: DefaultCacheConfig(id), Reason: err}
	}

	tmpl, ok := tf.Templates[name]
	if !ok {
		return Resolution{
			Outcome: TemplateMissing,
			Config:  DefaultCacheConfig(id),
			Reason:  fmt.Errorf("no template named %s in %s", name, path),
		}
	}

	return Resolution{Outcome: TemplateFound, Config: tmpl.Derive(id)}
}
