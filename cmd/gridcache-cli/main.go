package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/drone/envsubst"
	kitlog "github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/grafana/gridcache/pkg/grid"
	"github.com/grafana/gridcache/pkg/querycache"
	"github.com/grafana/gridcache/pkg/util/log"
)

// stdout is where commands print their results.
var stdout io.Writer = os.Stdout

type globalOptions struct {
	ConfigFile      string        `help:"Path to the configuration file." type:"path"`
	ConfigExpandEnv bool          `help:"Expand environment variable references in the configuration and template files."`
	LogLevel        string        `help:"Log level (debug, info, warn, error)." default:"warn"`
	LogFormat       string        `help:"Log format (logfmt, json)." default:"logfmt"`
	Timeout         time.Duration `help:"Timeout of a single command against the grid." default:"30s"`
}

var cli struct {
	globalOptions

	Cache struct {
		Put    cachePutCmd    `cmd:"" help:"Store a value under a key"`
		Get    cacheGetCmd    `cmd:"" help:"Print the value stored under a key"`
		Remove cacheRemoveCmd `cmd:"" help:"Remove a key and print the value it held"`
		Clear  cacheClearCmd  `cmd:"" help:"Remove every entry of a cache"`
		Size   cacheSizeCmd   `cmd:"" help:"Print the number of primary entries of a cache"`
	} `cmd:"" help:"Operate on a query cache. Keys and values are strings. Use the redis backend to reach data written by other processes."`

	Template struct {
		List    templateListCmd    `cmd:"" help:"List the templates of the template file"`
		Resolve templateResolveCmd `cmd:"" help:"Show the configuration a cache id resolves to"`
	} `cmd:"" help:"Inspect cache configuration templates"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("gridcache-cli"),
		kong.Description("gridcache command line tool"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.globalOptions)
	ctx.FatalIfErrorf(err)
}

// Config is the configuration file of the cli.
type Config struct {
	Grid       grid.Config       `yaml:"grid"`
	QueryCache querycache.Config `yaml:"query_cache"`
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.Grid.RegisterFlagsAndApplyDefaults(prefix, f)
	c.QueryCache.RegisterFlagsAndApplyDefaults(prefix, f)
}

// loadConfig applies flag defaults and overlays them with the configuration file, if any.
func loadConfig(opts *globalOptions) (*Config, error) {
	cfg := &Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("", flag.ContinueOnError))

	if opts.ConfigFile != "" {
		buff, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read configFile %s: %w", opts.ConfigFile, err)
		}

		if opts.ConfigExpandEnv {
			s, err := envsubst.EvalEnv(string(buff))
			if err != nil {
				return nil, fmt.Errorf("failed to expand env vars from configFile %s: %w", opts.ConfigFile, err)
			}
			buff = []byte(s)
		}

		dec := yaml.NewDecoder(bytes.NewReader(buff))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse configFile %s: %w", opts.ConfigFile, err)
		}
	}

	// --config-expand-env also applies to the template file
	if opts.ConfigExpandEnv {
		cfg.QueryCache.ExpandEnv = true
	}

	if err := cfg.Grid.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid config: %w", err)
	}
	return cfg, nil
}

func newLogger(opts *globalOptions) (kitlog.Logger, error) {
	lvl, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", opts.LogLevel, err)
	}
	return log.InitLogger(opts.LogFormat, lvl), nil
}

// withCache starts or attaches to the grid, builds the cache called id and hands it to fn. The
// runtime is stopped once fn returns.
func withCache(opts *globalOptions, id string, fn func(context.Context, *querycache.Adapter) error) (err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	reg := prometheus.NewRegistry()
	b := grid.NewBootstrap(cfg.Grid, logger, reg)
	rt, err := b.StartOrAttach(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, b.Stop(context.Background()))
	}()

	c, err := querycache.New(ctx, id, rt, cfg.QueryCache, logger, querycache.WithMetrics(querycache.NewMetrics(reg)))
	if err != nil {
		return err
	}
	return fn(ctx, c)
}
