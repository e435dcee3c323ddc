package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// profileFileName is the per-environment connection profile, stored
// alongside the schema cache FileStore manages: one JSON file per
// environment, avoiding a shared file multiple environments would
// otherwise contend for.
const profileFileName = "profile.json"

// LoadProfile reads <baseDir>/db/<env>/profile.json.
func LoadProfile(baseDir, env string) (types.ConnectionProfile, error) {
	path := filepath.Join(baseDir, "db", env, profileFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.ConnectionProfile{}, errors.Wrapf(types.ErrConfigMissing, "profile for %s not found at %s", env, path)
		}
		return types.ConnectionProfile{}, errors.Wrapf(err, "read profile %s", path)
	}

	var profile types.ConnectionProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return types.ConnectionProfile{}, errors.Wrapf(err, "parse profile %s", path)
	}
	profile.ID = env
	return profile, nil
}

// SaveProfile writes the connection profile, creating the environment
// directory if needed. AccessToken is never persisted (json:"-").
func SaveProfile(baseDir string, profile types.ConnectionProfile) error {
	dir := filepath.Join(baseDir, "db", profile.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create profile dir %s", dir)
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, profileFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "write profile %s", path)
	}
	return nil
}
