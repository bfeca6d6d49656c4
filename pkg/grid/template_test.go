package grid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTemplateFile = `
templates:
  template-cache:
    cache_mode: partitioned
    backups: 1
    partitions: 16
    statistics_enabled: true
    eviction_policy:
      max_entries: 1000
    cache_loader:
      factory: jdbc-loader
    cache_writer:
      factory: jdbc-writer
  replicated-cache:
    cache_mode: replicated
    partitions: ${TEST_GRID_PARTITIONS}
`

func writeTemplateFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config", "default-config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestResolveTemplate(t *testing.T) {
	t.Setenv("TEST_GRID_PARTITIONS", "8")
	path := writeTemplateFile(t, testTemplateFile)

	tcs := []struct {
		name      string
		path      string
		template  string
		expandEnv bool
		outcome   TemplateOutcome
		expected  CacheConfig
	}{
		{
			name:      "template found is derived",
			path:      path,
			template:  DefaultTemplateName,
			expandEnv: true,
			outcome:   TemplateFound,
			expected: CacheConfig{
				Name:              "Ignite",
				CacheMode:         CacheModePartitioned,
				Backups:           1,
				Partitions:        16,
				StatisticsEnabled: true,
			},
		},
		{
			name:      "env vars are expanded",
			path:      path,
			template:  "replicated-cache",
			expandEnv: true,
			outcome:   TemplateFound,
			expected: CacheConfig{
				Name:       "Ignite",
				CacheMode:  CacheModeReplicated,
				Partitions: 8,
			},
		},
		{
			name:      "missing template",
			path:      path,
			template:  "nope",
			expandEnv: true,
			outcome:   TemplateMissing,
			expected:  DefaultCacheConfig("Ignite"),
		},
		{
			name:     "missing file",
			path:     filepath.Join(t.TempDir(), "absent.yaml"),
			template: DefaultTemplateName,
			outcome:  TemplateMissing,
			expected: DefaultCacheConfig("Ignite"),
		},
		{
			name:     "unexpanded env var is malformed",
			path:     path,
			template: DefaultTemplateName,
			outcome:  TemplateMissing,
			expected: DefaultCacheConfig("Ignite"),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			res := ResolveTemplate(tc.path, tc.template, "Ignite", tc.expandEnv)
			assert.Equal(t, tc.outcome, res.Outcome)
			assert.Equal(t, tc.expected, res.Config)
			if tc.outcome == TemplateMissing {
				assert.Error(t, res.Reason)
			} else {
				assert.NoError(t, res.Reason)
			}
		})
	}
}

func TestResolveTemplateMalformed(t *testing.T) {
	tcs := map[string]string{
		"unknown field": "templates:\n  template-cache:\n    colour: blue\n",
		"not yaml":      "templates: [",
		"empty":         "",
	}

	for name, contents := range tcs {
		t.Run(name, func(t *testing.T) {
			res := ResolveTemplate(writeTemplateFile(t, contents), DefaultTemplateName, "c", false)
			require.Equal(t, TemplateMissing, res.Outcome)
			require.Equal(t, DefaultCacheConfig("c"), res.Config)
			require.Error(t, res.Reason)
		})
	}
}

func TestDeriveDoesNotTouchTemplate(t *testing.T) {
	tmpl := CacheConfig{
		Name:           "template-cache",
		EvictionPolicy: &EvictionPolicyConfig{MaxEntries: 10},
		CacheLoader:    &FactoryConfig{Factory: "loader"},
		CacheWriter:    &FactoryConfig{Factory: "writer"},
	}

	derived := tmpl.Derive("orders")
	require.Equal(t, CacheConfig{Name: "orders"}, derived)
	require.Equal(t, "template-cache", tmpl.Name)
	require.NotNil(t, tmpl.EvictionPolicy)
	require.NotNil(t, tmpl.CacheLoader)
	require.NotNil(t, tmpl.CacheWriter)
}

func TestCacheConfigValidate(t *testing.T) {
	tcs := []struct {
		name string
		cfg  CacheConfig
		err  bool
	}{
		{name: "bare", cfg: DefaultCacheConfig("a")},
		{name: "no name", cfg: CacheConfig{}, err: true},
		{name: "bad mode", cfg: CacheConfig{Name: "a", CacheMode: "sharded"}, err: true},
		{name: "negative backups", cfg: CacheConfig{Name: "a", Backups: -1}, err: true},
		{name: "negative partitions", cfg: CacheConfig{Name: "a", Partitions: -1}, err: true},
		{name: "empty eviction", cfg: CacheConfig{Name: "a", EvictionPolicy: &EvictionPolicyConfig{}}, err: true},
		{name: "loader", cfg: CacheConfig{Name: "a", CacheLoader: &FactoryConfig{Factory: "x"}}, err: true},
		{name: "writer", cfg: CacheConfig{Name: "a", CacheWriter: &FactoryConfig{Factory: "x"}}, err: true},
		{name: "eviction", cfg: CacheConfig{Name: "a", CacheMode: CacheModeLocal, EvictionPolicy: &EvictionPolicyConfig{MaxEntries: 1}}},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.err {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}

	require.ErrorIs(t, CacheConfig{Name: "a", CacheLoader: &FactoryConfig{}}.Validate(), ErrUnsupportedFactory)
}
