// Package store implements FieldMapStore as a directory of JSON and
// flat files, one sobject per subdirectory:
//
//	<basedir>/db/<env>/schema/<sobject>/<sobject>.json       field descriptors
//	<basedir>/db/<env>/schema/<sobject>/<sobject>_map.json   column map (recipe included)
//	<basedir>/db/<env>/schema/<sobject>/query.soql           persisted select statement
//	<basedir>/db/<env>/config.json                           table configuration
//
// Each ColumnMap already carries its transformer recipe kind, so there
// is no separate generated-transformer artifact to persist: internal/
// transform drives a static recipe dispatcher off the column map
// written above.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// FileStore is the on-disk FieldMapStore.
type FileStore struct {
	baseDir   string
	env       string
	schemaDir string
}

// New creates the schema directory tree under baseDir/db/env/schema if
// it does not already exist.
func New(baseDir, env string) (*FileStore, error) {
	schemaDir := filepath.Join(baseDir, "db", env, "schema")
	if err := os.MkdirAll(schemaDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create schema directory %s", schemaDir)
	}
	return &FileStore{baseDir: baseDir, env: env, schemaDir: schemaDir}, nil
}

func (s *FileStore) tableDir(sobject string) string {
	return filepath.Join(s.schemaDir, sobject)
}

func (s *FileStore) configPath() string {
	return filepath.Join(s.baseDir, "db", s.env, "config.json")
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// GetFields returns the persisted field descriptor list, ok=false if
// none has been saved yet (the sobject has never been reconciled).
func (s *FileStore) GetFields(sobject string) (types.SObjectDescriptor, bool, error) {
	var fields []types.FieldDescriptor
	path := filepath.Join(s.tableDir(sobject), sobject+".json")
	if err := readJSON(path, &fields); err != nil {
		if os.IsNotExist(err) {
			return types.SObjectDescriptor{}, false, nil
		}
		return types.SObjectDescriptor{}, false, errors.Wrapf(err, "read fields for %s", sobject)
	}
	return types.NewSObjectDescriptor(sobject, fields), true, nil
}

// SaveFields persists the field descriptor list for sobject.
func (s *FileStore) SaveFields(sobject string, desc types.SObjectDescriptor) error {
	path := filepath.Join(s.tableDir(sobject), sobject+".json")
	if err := writeJSON(path, desc.Fields); err != nil {
		return errors.Wrapf(err, "save fields for %s", sobject)
	}
	return nil
}

// GetColumnMap returns the persisted column map, ok=false if none has
// been saved yet.
func (s *FileStore) GetColumnMap(sobject string) ([]types.ColumnMap, bool, error) {
	var cols []types.ColumnMap
	path := filepath.Join(s.tableDir(sobject), sobject+"_map.json")
	if err := readJSON(path, &cols); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "read column map for %s", sobject)
	}
	return cols, true, nil
}

// SaveColumnMap persists the column map for sobject. Each ColumnMap
// already carries its RecipeKind, so no separate transformer artifact
// is written.
func (s *FileStore) SaveColumnMap(sobject string, cols []types.ColumnMap) error {
	path := filepath.Join(s.tableDir(sobject), sobject+"_map.json")
	if err := writeJSON(path, cols); err != nil {
		return errors.Wrapf(err, "save column map for %s", sobject)
	}
	return nil
}

// GetSelect returns the persisted SOQL select statement for sobject.
func (s *FileStore) GetSelect(sobject string) (string, bool, error) {
	path := filepath.Join(s.tableDir(sobject), "query.soql")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "read select for %s", sobject)
	}
	return string(data), true, nil
}

// SaveSelect persists the SOQL select statement for sobject.
func (s *FileStore) SaveSelect(sobject string, soql string) error {
	dir := s.tableDir(sobject)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create table dir for %s", sobject)
	}
	if err := os.WriteFile(filepath.Join(dir, "query.soql"), []byte(soql), 0o644); err != nil {
		return errors.Wrapf(err, "save select for %s", sobject)
	}
	return nil
}

type configFile struct {
	Configuration struct {
		SObjects []types.TableConfig `json:"sobjects"`
	} `json:"configuration"`
}

// GetConfiguredTables returns the saved table configuration list, nil
// if config.json does not exist yet (a fresh environment).
func (s *FileStore) GetConfiguredTables() ([]types.TableConfig, error) {
	var cfg configFile
	if err := readJSON(s.configPath(), &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read config.json")
	}
	return cfg.Configuration.SObjects, nil
}

// SaveConfiguredTables overwrites the sobjects list in config.json.
// Only configuration.sobjects is read back and rewritten; any other
// keys in an existing file are not preserved.
func (s *FileStore) SaveConfiguredTables(tables []types.TableConfig) error {
	var cfg configFile
	if err := readJSON(s.configPath(), &cfg); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "read existing config.json")
	}
	cfg.Configuration.SObjects = tables
	if err := writeJSON(s.configPath(), &cfg); err != nil {
		return errors.Wrap(err, "save config.json")
	}
	return nil
}
