package querycache

import (
	"flag"

	"github.com/grafana/gridcache/pkg/grid"
)

// Config controls how adapters resolve the configuration of their maps.
type Config struct {
	TemplateFile string `yaml:"template_file"`
	TemplateName string `yaml:"template_name"`
	ExpandEnv    bool   `yaml:"template_expand_env"`
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	if prefix != "" {
		prefix += "."
	}
	f.StringVar(&cfg.TemplateFile, prefix+"query-cache.template-file", grid.DefaultTemplateFile, "Template file holding named cache configurations.")
	f.StringVar(&cfg.TemplateName, prefix+"query-cache.template-name", grid.DefaultTemplateName, "Template used as the base configuration of every query cache.")
	f.BoolVar(&cfg.ExpandEnv, prefix+"query-cache.template-expand-env", false, "Expand ${VAR} references in the template file.")
}
