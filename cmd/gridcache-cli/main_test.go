package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/grafana/gridcache/pkg/grid"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	prev := stdout
	stdout = buf
	t.Cleanup(func() { stdout = prev })
	return buf
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(&globalOptions{})
	require.NoError(t, err)
	require.Equal(t, grid.BackendEmbedded, cfg.Grid.Backend)
	require.Equal(t, grid.DefaultTemplateFile, cfg.QueryCache.TemplateFile)
	require.Equal(t, grid.DefaultTemplateName, cfg.QueryCache.TemplateName)
	require.False(t, cfg.QueryCache.ExpandEnv)
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("TEST_REDIS_ENDPOINT", "localhost:6379")
	path := writeFile(t, t.TempDir(), "gridcache.yaml", `
grid:
  backend: redis
  redis:
    endpoint: ${TEST_REDIS_ENDPOINT}
    key_prefix: qc
query_cache:
  template_name: orders
`)

	cfg, err := loadConfig(&globalOptions{ConfigFile: path, ConfigExpandEnv: true})
	require.NoError(t, err)
	require.Equal(t, grid.BackendRedis, cfg.Grid.Backend)
	require.Equal(t, "localhost:6379", cfg.Grid.Redis.Endpoint)
	require.Equal(t, "qc", cfg.Grid.Redis.KeyPrefix)
	require.Equal(t, 500*time.Millisecond, cfg.Grid.Redis.Timeout)
	require.Equal(t, "orders", cfg.QueryCache.TemplateName)
	require.True(t, cfg.QueryCache.ExpandEnv)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := loadConfig(&globalOptions{ConfigFile: filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)

	_, err = loadConfig(&globalOptions{ConfigFile: writeFile(t, dir, "unknown.yaml", "grid:\n  nope: 1\n")})
	require.Error(t, err)

	_, err = loadConfig(&globalOptions{ConfigFile: writeFile(t, dir, "invalid.yaml", "grid:\n  backend: redis\n")})
	require.Error(t, err)

	cfg, err := loadConfig(&globalOptions{ConfigFile: writeFile(t, dir, "empty.yaml", "")})
	require.NoError(t, err)
	require.Equal(t, grid.BackendEmbedded, cfg.Grid.Backend)
}

func TestRenderTemplates(t *testing.T) {
	tf := &grid.TemplateFile{Templates: map[string]grid.CacheConfig{
		"template-cache": {
			CacheMode:      grid.CacheModePartitioned,
			Backups:        1,
			EvictionPolicy: &grid.EvictionPolicyConfig{MaxEntries: 10},
			CacheLoader:    &grid.FactoryConfig{Factory: "jdbc"},
		},
		"bare": {},
	}}

	buf := &bytes.Buffer{}
	renderTemplates(buf, tf, grid.DefaultTemplateName)

	out := buf.String()
	require.Contains(t, out, "template-cache")
	require.Contains(t, out, "eviction_policy,cache_loader")
	require.Contains(t, out, "partitioned")
	require.Less(t, bytes.Index(buf.Bytes(), []byte("bare")), bytes.Index(buf.Bytes(), []byte("template-cache")))
}

func TestTemplateResolveCmd(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeFile(t, dir, grid.DefaultTemplateFile, `
templates:
  template-cache:
    backups: 2
    eviction_policy:
      max_entries: 10
`)
	cfgFile := writeFile(t, dir, "gridcache.yaml", "query_cache:\n  template_file: "+tmpl+"\n")
	out := captureStdout(t)

	require.NoError(t, (&templateResolveCmd{ID: "orders"}).Run(&globalOptions{ConfigFile: cfgFile}))
	require.Contains(t, out.String(), "template: found")
	require.Contains(t, out.String(), "name: orders")
	require.Contains(t, out.String(), "backups: 2")
	require.NotContains(t, out.String(), "eviction_policy")

	out.Reset()
	require.NoError(t, os.Remove(tmpl))
	require.NoError(t, (&templateResolveCmd{ID: "orders"}).Run(&globalOptions{ConfigFile: cfgFile}))
	require.Contains(t, out.String(), "template: missing")
	require.Contains(t, out.String(), "reason  :")
}

func TestCacheCommandsAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	cfgFile := writeFile(t, dir, "gridcache.yaml", `
grid:
  backend: redis
  redis:
    endpoint: `+mr.Addr()+`
query_cache:
  template_file: `+filepath.Join(dir, "missing.yaml")+`
`)
	opts := &globalOptions{ConfigFile: cfgFile, LogLevel: "error", LogFormat: "logfmt", Timeout: 5 * time.Second}
	out := captureStdout(t)

	require.NoError(t, (&cachePutCmd{cacheOptions: cacheOptions{ID: "orders"}, Key: "k", Value: "v"}).Run(opts))
	require.NoError(t, (&cachePutCmd{cacheOptions: cacheOptions{ID: "orders"}, Key: "k2", Value: "v2"}).Run(opts))

	require.NoError(t, (&cacheGetCmd{cacheOptions: cacheOptions{ID: "orders"}, Key: "k"}).Run(opts))
	require.Equal(t, "v\n", out.String())

	out.Reset()
	require.NoError(t, (&cacheSizeCmd{cacheOptions: cacheOptions{ID: "orders"}}).Run(opts))
	require.Equal(t, "2 entries\n", out.String())

	out.Reset()
	require.NoError(t, (&cacheRemoveCmd{cacheOptions: cacheOptions{ID: "orders"}, Key: "k"}).Run(opts))
	require.Equal(t, "v\n", out.String())

	out.Reset()
	require.NoError(t, (&cacheGetCmd{cacheOptions: cacheOptions{ID: "orders"}, Key: "k"}).Run(opts))
	require.Equal(t, "<not found>\n", out.String())

	require.NoError(t, (&cacheClearCmd{cacheOptions: cacheOptions{ID: "orders"}}).Run(opts))
	require.False(t, mr.Exists("gridcache:orders"))
}
