// Package config binds the CLI surface and loads the per-environment
// connection profile: flags are bound onto a Config struct and
// validated in Preflight before any action runs.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config is the full CLI-bindable surface for one invocation. Exactly
// one of the action fields is meaningful per run; main.go dispatches
// on whichever was set.
type Config struct {
	BaseDir string

	Init    bool
	Inspect bool
	Scrub   bool
	Sample  bool

	Sync    []string
	Schema  []string
	Export  []string
	Load    []string
	Dump    []string
	Enable  []string
	Disable []string

	Workers int
}

// Bind registers every flag this CLI accepts against flags.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.BaseDir, "basedir", "./gurglefish-data",
		"root directory for the schema cache, config, and export files")

	flags.BoolVar(&c.Init, "init", false, "create config.json for the given environment")
	flags.BoolVar(&c.Inspect, "inspect", false, "list available sobjects")
	flags.BoolVar(&c.Scrub, "scrub", false, "force scrub of deleted records")
	flags.BoolVar(&c.Sample, "sample", false, "sample data (500 rows) during export")

	flags.StringArrayVar(&c.Sync, "sync", nil, "sync table updates for every enabled table (sobject|@file values are accepted but do not narrow the set)")
	flags.StringArrayVar(&c.Schema, "schema", nil, "load sobject schema and create tables if missing (sobject|@file)")
	flags.StringArrayVar(&c.Export, "export", nil, "export full sobject data to file (sobject|@file)")
	flags.StringArrayVar(&c.Load, "load", nil, "load/import full table data, table must be empty (sobject|@file)")
	flags.StringArrayVar(&c.Dump, "dump", nil, "dump contents of table to file (table|@file)")
	flags.StringArrayVar(&c.Enable, "enable", nil, "enable one or more tables to sync (sobject|@file)")
	flags.StringArrayVar(&c.Disable, "disable", nil, "disable one or more tables from sync (sobject|@file)")

	flags.IntVar(&c.Workers, "workers", 0, "override the connection profile's worker count (1-4)")
}

// Preflight validates that at most one of --init, --sync, --schema,
// --export, --load and --dump was set; --inspect, --enable and
// --disable are not part of this check.
func (c *Config) Preflight() error {
	exclusive := 0
	for _, set := range [][]string{c.Sync, c.Schema, c.Export, c.Load, c.Dump} {
		if set != nil {
			exclusive++
		}
	}
	if c.Init {
		exclusive++
	}
	if exclusive > 1 {
		return errors.New("config: --init, --sync, --schema, --export, --load, and --dump are mutually exclusive")
	}
	return nil
}
