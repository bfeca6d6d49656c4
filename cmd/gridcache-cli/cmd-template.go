package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/grafana/gridcache/pkg/grid"
)

type templateListCmd struct{}

func (cmd *templateListCmd) Run(opts *globalOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	tf, err := grid.LoadTemplateFile(cfg.QueryCache.TemplateFile, cfg.QueryCache.ExpandEnv)
	if err != nil {
		return err
	}

	renderTemplates(stdout, tf, cfg.QueryCache.TemplateName)
	return nil
}

// renderTemplates writes one row per template. Fields listed as stripped are dropped when a
// cache is derived from the template.
func renderTemplates(w io.Writer, tf *grid.TemplateFile, active string) {
	x := table.NewWriter()
	x.SetOutputMirror(w)
	x.AppendHeader(table.Row{"name", "mode", "backups", "partitions", "statistics", "stripped", "active"})

	for _, name := range slices.Sorted(maps.Keys(tf.Templates)) {
		t := tf.Templates[name]

		mode := string(t.CacheMode)
		if mode == "" {
			mode = "-"
		}
		partitions := "default"
		if t.Partitions > 0 {
			partitions = strconv.Itoa(t.Partitions)
		}

		x.AppendRow(table.Row{name, mode, t.Backups, partitions, t.StatisticsEnabled, strings.Join(strippedFields(t), ","), name == active})
	}

	x.Render()
}

func strippedFields(cfg grid.CacheConfig) []string {
	var fields []string
	if cfg.EvictionPolicy != nil {
		fields = append(fields, "eviction_policy")
	}
	if cfg.CacheLoader != nil {
		fields = append(fields, "cache_loader")
	}
	if cfg.CacheWriter != nil {
		fields = append(fields, "cache_writer")
	}
	return fields
}

type templateResolveCmd struct {
	ID string `arg:"" help:"cache id"`
}

func (cmd *templateResolveCmd) Run(opts *globalOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	res := grid.ResolveTemplate(cfg.QueryCache.TemplateFile, cfg.QueryCache.TemplateName, cmd.ID, cfg.QueryCache.ExpandEnv)
	return printResolution(stdout, res)
}

func printResolution(w io.Writer, res grid.Resolution) error {
	fmt.Fprintln(w, "template:", res.Outcome)
	if res.Reason != nil {
		fmt.Fprintln(w, "reason  :", res.Reason)
	}

	out, err := yaml.Marshal(res.Config)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "---")
	_, err = w.Write(out)
	return err
}
