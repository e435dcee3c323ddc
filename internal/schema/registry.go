// Package schema holds the explicit SchemaDriver registry: a small
// compile-time registration map in place of runtime driver discovery.
// The driver set is fixed at build time (internal/schema/postgres,
// internal/schema/mysql), so there is nothing to discover at runtime
// and no import-by-string indirection to debug.
package schema

import (
	"fmt"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// Factory constructs an unconnected SchemaDriver.
type Factory func() types.SchemaDriver

var registry = map[types.DBVendor]Factory{}

// Register adds a driver factory under vendor. Called from each
// driver package's init, the way database/sql's own driver registry
// works, so importing internal/schema/postgres for its side effect is
// enough to make VendorPostgres available.
func Register(vendor types.DBVendor, factory Factory) {
	registry[vendor] = factory
}

// New constructs a SchemaDriver for the given vendor.
func New(vendor types.DBVendor) (types.SchemaDriver, error) {
	factory, ok := registry[vendor]
	if !ok {
		return nil, fmt.Errorf("no schema driver registered for vendor %q", vendor)
	}
	return factory(), nil
}
