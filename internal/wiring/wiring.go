// Package wiring assembles one environment's collaborators — the
// connection profile, the field-map store, the remote client, and a
// schema-driver factory — into the App bag cmd/gurglefish drives,
// replacing process-wide singletons with an explicit bag passed to
// every component. It is built as a Set of Provide functions
// (provider.go, built only under the wireinject tag so `go build`
// never needs the wire binary) plus a hand-written constructor that
// mirrors exactly what running `wire` over that Set would emit
// (wire_gen.go).
package wiring

import (
	"github.com/mlsmithjr/gurglefish/internal/sync"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

// App is every collaborator one CLI invocation needs, built once per
// env and handed to whichever action cmd/gurglefish dispatches to.
type App struct {
	Profile types.ConnectionProfile
	Store   types.FieldMapStore
	Remote  types.RemoteClient

	// NewSchemaConn opens one exclusive SchemaDriver connection; sync
	// and export call it once per worker/task so no connection is ever
	// shared across goroutines.
	NewSchemaConn sync.SchemaFactory
}
