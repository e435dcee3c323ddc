package types

import (
	"context"
	"io"
	"time"
)

// Record is a single remote row as decoded from JSON: field name to
// value, attributes envelope included until the caller strips it.
type Record map[string]interface{}

// Row is a transformed, ready-to-apply local row: local column name to
// value.
type Row map[string]interface{}

// RecordStream is a lazy, restartable-per-call sequence of remote
// records, modelling the REST pager and the bulk result stream alike.
// Implementations close automatically when Next returns false; callers
// must still check Err after the loop ends.
type RecordStream interface {
	Next(ctx context.Context) bool
	Record() Record
	Err() error
}

// RemoteClient is the remote query/describe/bulk surface. Only the
// interface is authoritative here; authentication (OAuth token
// acquisition) happens before a RemoteClient is constructed, so every
// method assumes a valid session.
type RemoteClient interface {
	// Query streams query results, paging through nextRecordsUrl as
	// needed. includeDeleted selects queryAll vs query.
	Query(ctx context.Context, soql string, includeDeleted bool) (RecordStream, error)

	// BulkQuery runs the async bulk API: create job, submit one batch,
	// poll until terminal state or timeout, then stream NDJSON-style
	// results. PK chunking is the caller's responsibility to request
	// via EnablePKChunking beforehand.
	BulkQuery(ctx context.Context, sobject, soql string, timeout time.Duration) (RecordStream, error)

	// EnablePKChunking toggles the Sforce-Enable-PKChunking header for
	// subsequent bulk queries.
	EnablePKChunking(enabled bool, chunkSize int)

	RecordCount(ctx context.Context, sobject string, filter string) (int, error)
	GetSObjectList(ctx context.Context) ([]SObjectSummary, error)
	GetSObjectDefinition(ctx context.Context, name string) (SObjectSummary, error)
	GetFieldList(ctx context.Context, sobject string) (SObjectDescriptor, error)

	// APICalls returns the cumulative round-trip counter, incremented
	// atomically on every HTTP call this client instance makes.
	APICalls() int64
}

// SObjectSummary is the subset of the sobject list/describe payload
// the eligibility filter and schema code need.
type SObjectSummary struct {
	Name           string
	CustomSetting  bool
	Replicateable  bool
	Updateable     bool
}

// SchemaDriver is the database-facing surface: introspection, DDL,
// upsert/delete, bulk load/dump, and the bootstrap metadata tables.
type SchemaDriver interface {
	Connect(ctx context.Context, profile ConnectionProfile) error
	Close(ctx context.Context) error

	TableExists(ctx context.Context, table string) (bool, error)
	GetDBColumns(ctx context.Context, table string) ([]string, error)
	GetTableFields(ctx context.Context, table string) ([]TableField, error)

	MakeCreateTable(sobject SObjectDescriptor) (tableName string, cols []ColumnMap, ddl string)
	ExecDDL(ctx context.Context, ddl string) error

	AlterTableAddColumns(ctx context.Context, table string, fields []FieldDescriptor) ([]ColumnMap, error)
	AlterTableDropColumns(ctx context.Context, table string, names []string) error
	MaintainIndexes(ctx context.Context, table string, fields []FieldDescriptor) error

	MaxTimestamp(ctx context.Context, table string) (*time.Time, error)

	// Upsert returns (inserted, updated). A no-op diff returns
	// (false,false) without issuing DML.
	Upsert(ctx context.Context, tx Tx, table string, row Row) (inserted, updated bool, err error)
	Delete(ctx context.Context, tx Tx, table string, id string) (int, error)

	// DumpIDs streams the local table's 15-char ids, one per line, to w
	// in ascending id order — used by scrub.
	DumpIDs(ctx context.Context, table string, w io.Writer) error

	ImportNative(ctx context.Context, table string, gzipped io.Reader) error
	ExportNative(ctx context.Context, table string, gzipped io.Writer) error

	Begin(ctx context.Context) (Tx, error)

	StartSyncJob(ctx context.Context) (int64, error)
	FinishSyncJob(ctx context.Context, jobID int64) error
	InsertSyncStats(ctx context.Context, stats SyncStats) error
	CleanHouse(ctx context.Context, before time.Time) error
}

// Tx is the minimal transaction surface SchemaDriver callers need;
// each worker owns exactly one at a time.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TableField is one row of local column introspection, ordered by
// ordinal position.
type TableField struct {
	ColumnName      string
	DataType        string
	OrdinalPosition int
}

// FieldMapStore owns the durable per-object column map, the generated
// transformer recipe, and the cached SOQL select — everything
// SchemaReconciler writes back after a reconcile pass.
type FieldMapStore interface {
	GetFields(sobject string) (SObjectDescriptor, bool, error)
	SaveFields(sobject string, fields SObjectDescriptor) error

	// GetColumnMap/SaveColumnMap persist the column map; each ColumnMap
	// already carries its transformer Recipe kind, so no separate
	// transformer-source artifact is needed.
	GetColumnMap(sobject string) ([]ColumnMap, bool, error)
	SaveColumnMap(sobject string, cols []ColumnMap) error

	GetSelect(sobject string) (string, bool, error)
	SaveSelect(sobject string, soql string) error

	GetConfiguredTables() ([]TableConfig, error)
	SaveConfiguredTables(tables []TableConfig) error
}
