package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/grafana/gridcache/pkg/querycache"
)

type cacheOptions struct {
	ID string `arg:"" help:"cache id"`
}

type cachePutCmd struct {
	cacheOptions

	Key   string `arg:"" help:"key to store"`
	Value string `arg:"" help:"value to store"`
}

func (cmd *cachePutCmd) Run(opts *globalOptions) error {
	return withCache(opts, cmd.ID, func(ctx context.Context, c *querycache.Adapter) error {
		return c.PutObject(ctx, cmd.Key, cmd.Value)
	})
}

type cacheGetCmd struct {
	cacheOptions

	Key string `arg:"" help:"key to look up"`
}

func (cmd *cacheGetCmd) Run(opts *globalOptions) error {
	return withCache(opts, cmd.ID, func(ctx context.Context, c *querycache.Adapter) error {
		v, err := c.GetObject(ctx, cmd.Key)
		if err != nil {
			return err
		}
		printValue(v)
		return nil
	})
}

type cacheRemoveCmd struct {
	cacheOptions

	Key string `arg:"" help:"key to remove"`
}

func (cmd *cacheRemoveCmd) Run(opts *globalOptions) error {
	return withCache(opts, cmd.ID, func(ctx context.Context, c *querycache.Adapter) error {
		v, err := c.RemoveObject(ctx, cmd.Key)
		if err != nil {
			return err
		}
		printValue(v)
		return nil
	})
}

type cacheClearCmd struct {
	cacheOptions
}

func (cmd *cacheClearCmd) Run(opts *globalOptions) error {
	return withCache(opts, cmd.ID, func(ctx context.Context, c *querycache.Adapter) error {
		return c.Clear(ctx)
	})
}

type cacheSizeCmd struct {
	cacheOptions
}

func (cmd *cacheSizeCmd) Run(opts *globalOptions) error {
	return withCache(opts, cmd.ID, func(ctx context.Context, c *querycache.Adapter) error {
		n, err := c.Size(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s entries\n", humanize.Comma(int64(n)))
		return nil
	})
}

func printValue(v any) {
	if v == nil {
		fmt.Fprintln(stdout, "<not found>")
		return
	}
	fmt.Fprintln(stdout, v)
}
