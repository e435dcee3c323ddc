// Command gurglefish is the thin CLI front end: flag binding plus
// dispatch to the core engine packages. It implements just enough
// argument parsing and subcommand dispatch to drive internal/reconcile,
// internal/sync, and internal/export end to end.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/mlsmithjr/gurglefish/internal/config"
	"github.com/mlsmithjr/gurglefish/internal/export"
	"github.com/mlsmithjr/gurglefish/internal/reconcile"
	_ "github.com/mlsmithjr/gurglefish/internal/schema/mysql"
	_ "github.com/mlsmithjr/gurglefish/internal/schema/postgres"
	"github.com/mlsmithjr/gurglefish/internal/sync"
	"github.com/mlsmithjr/gurglefish/internal/types"
	"github.com/mlsmithjr/gurglefish/internal/wiring"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// Exit codes: 0 success, 1 configuration error, nonzero on unhandled
// exception.
const (
	exitOK     = 0
	exitConfig = 1
	exitError  = 2
)

func run(argv []string) int {
	flags := pflag.NewFlagSet("gurglefish", pflag.ContinueOnError)
	cfg := &config.Config{}
	cfg.Bind(flags)

	if err := flags.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: gurglefish [flags] <env>")
		return exitConfig
	}
	env := flags.Arg(0)

	if err := cfg.Preflight(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	ctx := context.Background()
	logger := log.WithField("env", env)

	if err := dispatch(ctx, logger, cfg, env); err != nil {
		if errIsConfig(err) {
			logger.WithError(err).Error("configuration error")
			return exitConfig
		}
		logger.WithError(err).Error("gurglefish failed")
		return exitError
	}
	return exitOK
}

func errIsConfig(err error) bool {
	return errors.Is(err, types.ErrConfigMissing) || errors.Is(err, types.ErrAuthFailure) || errors.Is(err, types.ErrConnectFailure)
}

// dispatch assembles one environment's App via wiring.NewApp — the
// profile/store/remote/schema-factory bag every action needs, wired
// once instead of re-derived per action — then runs whichever single
// action the config's mutually-exclusive flags selected.
func dispatch(ctx context.Context, logger *log.Entry, cfg *config.Config, env string) error {
	app, err := wiring.NewApp(ctx, cfg.BaseDir, env)
	if err != nil {
		return err
	}
	if cfg.Workers > 0 {
		app.Profile.Threads = cfg.Workers
	}

	switch {
	case cfg.Init:
		return doInit(ctx, logger, app.Remote, app.Store)
	case cfg.Inspect:
		return doInspect(ctx, logger, app.Remote)
	case cfg.Enable != nil:
		return doEnableDisable(ctx, app.Remote, app.Store, cfg.Enable, true)
	case cfg.Disable != nil:
		return doEnableDisable(ctx, app.Remote, app.Store, cfg.Disable, false)
	case cfg.Schema != nil:
		return doSchema(ctx, logger, app.Remote, app.Store, app.NewSchemaConn, cfg.Schema)
	case cfg.Sync != nil:
		return doSync(ctx, logger, app.Remote, app.Store, app.NewSchemaConn, app.Profile, cfg.Scrub)
	case cfg.Export != nil:
		return doExport(ctx, logger, app.Remote, app.Store, app.NewSchemaConn, cfg.BaseDir, env, cfg.Export, cfg.Sample)
	case cfg.Load != nil:
		return doLoad(ctx, app.NewSchemaConn, cfg.BaseDir, env, cfg.Load)
	case cfg.Dump != nil:
		return doDump(ctx, app.NewSchemaConn, cfg.BaseDir, env, cfg.Dump)
	}

	fmt.Fprintln(os.Stderr, "no action specified; see --help")
	return nil
}

func doInit(ctx context.Context, logger *log.Entry, remoteClient types.RemoteClient, fieldStore types.FieldMapStore) error {
	r := reconcile.New(remoteClient, nil, fieldStore)
	if err := r.InitializeConfig(ctx, nil); err != nil {
		return err
	}
	logger.Info("initial configuration created")
	return nil
}

func doInspect(ctx context.Context, logger *log.Entry, remoteClient types.RemoteClient) error {
	r := reconcile.New(remoteClient, nil, nil)
	sobjects, err := r.Inspect(ctx, nil)
	if err != nil {
		return err
	}
	for _, s := range sobjects {
		fmt.Println(s.Name)
	}
	logger.Infof("%d eligible sobjects", len(sobjects))
	return nil
}

func doEnableDisable(ctx context.Context, remoteClient types.RemoteClient, fieldStore types.FieldMapStore, names []string, flag bool) error {
	expanded, err := config.ExpandArgs(names)
	if err != nil {
		return err
	}
	r := reconcile.New(remoteClient, nil, fieldStore)
	return r.EnableTableSync(ctx, expanded, flag)
}

func doSchema(ctx context.Context, logger *log.Entry, remoteClient types.RemoteClient, fieldStore types.FieldMapStore, newSchemaConn sync.SchemaFactory, names []string) error {
	schemaDriver, err := newSchemaConn(ctx)
	if err != nil {
		return err
	}
	defer schemaDriver.Close(ctx)

	r := reconcile.New(remoteClient, schemaDriver, fieldStore)

	targets, err := resolveTableNames(names, fieldStore, true)
	if err != nil {
		return err
	}
	for _, name := range targets {
		logger.Infof("loading schema for %s", name)
		if err := r.CreateTable(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func doSync(ctx context.Context, logger *log.Entry, remoteClient types.RemoteClient, fieldStore types.FieldMapStore, newSchemaConn sync.SchemaFactory, profile types.ConnectionProfile, scrub bool) error {
	engine := sync.New(remoteClient, fieldStore, newSchemaConn, profile.WorkerCount())
	engine.ForceScrub = scrub
	logger.Info("starting sync")
	return engine.Run(ctx)
}

func doExport(ctx context.Context, logger *log.Entry, remoteClient types.RemoteClient, fieldStore types.FieldMapStore, newSchemaConn sync.SchemaFactory, baseDir, env string, names []string, sample bool) error {
	schemaDriver, err := newSchemaConn(ctx)
	if err != nil {
		return err
	}
	defer schemaDriver.Close(ctx)

	outDir := filepath.Join(baseDir, "db", env, "export")
	engine, err := export.New(remoteClient, schemaDriver, fieldStore, outDir)
	if err != nil {
		return err
	}

	targets, err := resolveTableNames(names, fieldStore, false)
	if err != nil {
		return err
	}
	for _, name := range targets {
		cfg, err := tableConfigFor(fieldStore, name)
		if err != nil {
			return err
		}
		count, err := engine.ExportTable(ctx, cfg, sample, nil)
		if err != nil {
			return err
		}
		logger.Infof("exported %d records for %s", count, name)
	}
	return nil
}

func doLoad(ctx context.Context, newSchemaConn sync.SchemaFactory, baseDir, env string, names []string) error {
	schemaDriver, err := newSchemaConn(ctx)
	if err != nil {
		return err
	}
	defer schemaDriver.Close(ctx)

	targets, err := config.ExpandArgs(names)
	if err != nil {
		return err
	}
	for _, name := range targets {
		path := filepath.Join(baseDir, "db", env, "export", name+".exp.gz")
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = schemaDriver.ImportNative(ctx, name, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func doDump(ctx context.Context, newSchemaConn sync.SchemaFactory, baseDir, env string, names []string) error {
	schemaDriver, err := newSchemaConn(ctx)
	if err != nil {
		return err
	}
	defer schemaDriver.Close(ctx)

	targets, err := config.ExpandArgs(names)
	if err != nil {
		return err
	}
	outDir := filepath.Join(baseDir, "db", env, "export")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, name := range targets {
		path := filepath.Join(outDir, name+".exp.gz")
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		err = schemaDriver.ExportNative(ctx, name, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveTableNames expands @file tokens in an explicit list, or (when
// allowEmptyFallback and the list is empty) falls back to every
// enabled table in the persisted configuration.
func resolveTableNames(names []string, fieldStore types.FieldMapStore, allowEmptyFallback bool) ([]string, error) {
	expanded, err := config.ExpandArgs(names)
	if err != nil {
		return nil, err
	}
	if len(expanded) > 0 || !allowEmptyFallback {
		return expanded, nil
	}

	configs, err := fieldStore.GetConfiguredTables()
	if err != nil {
		return nil, err
	}
	var enabled []string
	for _, c := range configs {
		if c.Enabled {
			enabled = append(enabled, c.CanonicalName())
		}
	}
	return enabled, nil
}

// tableConfigFor looks up the persisted TableConfig for name, falling
// back to a disabled, REST-only default if none was ever saved (e.g.
// exporting a table never added to config.json).
func tableConfigFor(fieldStore types.FieldMapStore, name string) (types.TableConfig, error) {
	configs, err := fieldStore.GetConfiguredTables()
	if err != nil {
		return types.TableConfig{}, err
	}
	for _, c := range configs {
		if c.CanonicalName() == name {
			return c, nil
		}
	}
	return types.TableConfig{Name: name}, nil
}
