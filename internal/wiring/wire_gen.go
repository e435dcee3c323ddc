// Hand-written in the shape of Wire's generated injector for
// provider.go's Set; the wire tool is not run on this module.

//go:generate go run github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wiring

import (
	"context"

	"github.com/mlsmithjr/gurglefish/internal/config"
	"github.com/mlsmithjr/gurglefish/internal/remote"
	"github.com/mlsmithjr/gurglefish/internal/schema"
	"github.com/mlsmithjr/gurglefish/internal/store"
	"github.com/mlsmithjr/gurglefish/internal/sync"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

// NewApp wires one environment's App exactly as running `wire` over
// provider.go's Set would generate it.
func NewApp(ctx context.Context, baseDir, env string) (*App, error) {
	profile, err := ProvideProfile(baseDir, env)
	if err != nil {
		return nil, err
	}
	fieldStore, err := ProvideFieldStore(baseDir, env)
	if err != nil {
		return nil, err
	}
	remoteClient := ProvideRemoteClient(profile)
	schemaFactory := ProvideSchemaFactory(profile)
	app := &App{
		Profile:       profile,
		Store:         fieldStore,
		Remote:        remoteClient,
		NewSchemaConn: schemaFactory,
	}
	return app, nil
}

func ProvideProfile(baseDir, env string) (types.ConnectionProfile, error) {
	profile, err := config.LoadProfile(baseDir, env)
	if err != nil {
		return types.ConnectionProfile{}, err
	}
	return config.ResolveSession(profile)
}

func ProvideFieldStore(baseDir, env string) (types.FieldMapStore, error) {
	return store.New(baseDir, env)
}

func ProvideRemoteClient(profile types.ConnectionProfile) types.RemoteClient {
	return remote.New(nil, profile.InstanceURL, profile.AccessToken)
}

func ProvideSchemaFactory(profile types.ConnectionProfile) sync.SchemaFactory {
	return func(ctx context.Context) (types.SchemaDriver, error) {
		driver, err := schema.New(profile.DBVendor)
		if err != nil {
			return nil, err
		}
		if err := driver.Connect(ctx, profile); err != nil {
			return nil, err
		}
		return driver, nil
	}
}
