//go:build wireinject

package wiring

import (
	"context"

	"github.com/google/wire"

	"github.com/mlsmithjr/gurglefish/internal/config"
	"github.com/mlsmithjr/gurglefish/internal/remote"
	"github.com/mlsmithjr/gurglefish/internal/schema"
	"github.com/mlsmithjr/gurglefish/internal/store"
	"github.com/mlsmithjr/gurglefish/internal/sync"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

// Set is used by Wire.
var Set = wire.NewSet(
	ProvideProfile,
	ProvideFieldStore,
	ProvideRemoteClient,
	ProvideSchemaFactory,
	wire.Struct(new(App), "*"),
)

// ProvideProfile loads and resolves the connection profile for env,
// including acquiring session auth via ResolveSession.
func ProvideProfile(baseDir, env string) (types.ConnectionProfile, error) {
	profile, err := config.LoadProfile(baseDir, env)
	if err != nil {
		return types.ConnectionProfile{}, err
	}
	return config.ResolveSession(profile)
}

// ProvideFieldStore is called by Wire to build the on-disk
// FieldMapStore.
func ProvideFieldStore(baseDir, env string) (types.FieldMapStore, error) {
	return store.New(baseDir, env)
}

// ProvideRemoteClient is called by Wire to build the shared
// RemoteClient every worker's reconciler/sync/export uses.
func ProvideRemoteClient(profile types.ConnectionProfile) types.RemoteClient {
	return remote.New(nil, profile.InstanceURL, profile.AccessToken)
}

// ProvideSchemaFactory is called by Wire to build the per-worker
// SchemaDriver constructor, selected by the profile's DBVendor.
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

// NewApp is the wire injector; see wire_gen.go for the hand-assembled
// equivalent actually compiled into the binary.
func NewApp(ctx context.Context, baseDir, env string) (*App, error) {
	panic(wire.Build(Set))
}
