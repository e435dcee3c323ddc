package types

import "github.com/pkg/errors"

// Error kinds named in the error-handling design. Each is a sentinel
// wrapped with github.com/pkg/errors at the boundary it originates
// from, so callers recover the kind with errors.Is against these
// values (or errors.Cause for the wrapped chain).
var (
	// ErrConfigMissing is fatal at the CLI layer only.
	ErrConfigMissing = errors.New("gurglefish: configuration missing")

	// ErrAuthFailure comes from remote login; fatal for the run.
	ErrAuthFailure = errors.New("gurglefish: remote authentication failed")

	// ErrConnectFailure comes from SchemaDriver.Connect; fatal for the
	// run.
	ErrConnectFailure = errors.New("gurglefish: database connect failed")

	// ErrSchemaError is an unknown remote field type in TypeMapper;
	// fatal for that sobject only.
	ErrSchemaError = errors.New("gurglefish: unrecognized remote field type")

	// ErrQueryTooLarge is HTTP 431 from the REST query endpoint;
	// recoverable at the sobject level by switching to bulk mode.
	ErrQueryTooLarge = errors.New("gurglefish: query result too large for REST API")

	// ErrDBError is any database error while applying a record; the
	// worker rolls back and skips the stats write.
	ErrDBError = errors.New("gurglefish: database error applying record")

	// ErrRemoteTransient is a non-200 HTTP status during streaming; the
	// sobject is ended, other sobjects continue.
	ErrRemoteTransient = errors.New("gurglefish: transient remote error")

	// ErrBulkTimeout is a bulk batch that did not start within the
	// caller's timeout; sobject-level failure.
	ErrBulkTimeout = errors.New("gurglefish: bulk query did not start before timeout")
)
