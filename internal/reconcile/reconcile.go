// Package reconcile implements SchemaReconciler: the eligibility
// filter, table bootstrap, and add/drop column diffing that keeps the
// local table in sync with the remote sobject's field list.
package reconcile

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mlsmithjr/gurglefish/internal/metrics"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

// Reconciler ties together the remote describe surface, the local
// schema driver, and the persisted field-map store to keep one table
// current with its sobject's shape.
type Reconciler struct {
	Remote types.RemoteClient
	Schema types.SchemaDriver
	Store  types.FieldMapStore
	log    *log.Entry
}

// New constructs a Reconciler.
func New(remote types.RemoteClient, schemaDriver types.SchemaDriver, store types.FieldMapStore) *Reconciler {
	return &Reconciler{
		Remote: remote,
		Schema: schemaDriver,
		Store:  store,
		log:    log.WithField("component", "reconcile"),
	}
}

// blockedSuffixes/blockedPrefixes/blockedNames mirror accept_sobject's
// hard-coded exclusion rules for system and metadata objects that are
// never useful to mirror locally.
var (
	blockedSuffixes = []string{"_del__c", "__Tag", "__History", "__Feed"}
	blockedPrefixes = []string{"Apex"}
	blockedNames    = map[string]bool{"scontrol": true, "weblink": true, "profile": true}
)

// AcceptSObject reports whether sobj is eligible for syncing, applying
// the same rules as accept_sobject: an optional allow-list filter, then
// the hard exclusions for custom settings, non-replicateable or
// non-updateable objects, and known junk suffixes/prefixes/names.
func AcceptSObject(sobj types.SObjectSummary, filters []string) bool {
	if len(filters) > 0 && !contains(filters, sobj.Name) {
		return false
	}
	if strings.HasSuffix(sobj.Name, "_del__c") {
		return false
	}
	if sobj.CustomSetting || !sobj.Replicateable || !sobj.Updateable {
		return false
	}
	for _, suf := range blockedSuffixes {
		if strings.HasSuffix(sobj.Name, suf) {
			return false
		}
	}
	for _, pre := range blockedPrefixes {
		if strings.HasPrefix(sobj.Name, pre) {
			return false
		}
	}
	if blockedNames[strings.ToLower(sobj.Name)] {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Inspect lists every remote sobject that passes AcceptSObject.
func (r *Reconciler) Inspect(ctx context.Context, filters []string) ([]types.SObjectSummary, error) {
	all, err := r.Remote.GetSObjectList(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "inspect: list sobjects")
	}
	var accepted []types.SObjectSummary
	for _, s := range all {
		if AcceptSObject(s, filters) {
			accepted = append(accepted, s)
		}
	}
	return accepted, nil
}

// CreateTable bootstraps a brand-new sobject: fetch/persist its field
// list, derive the column map and select statement, and issue the
// CREATE TABLE + index DDL if the table does not already exist. This
// is create_table's Go counterpart; if the table already exists no DDL
// is issued, but the column map and select statement are still saved.
func (r *Reconciler) CreateTable(ctx context.Context, sobjectName string) error {
	name := strings.ToLower(sobjectName)

	desc, ok, err := r.Store.GetFields(name)
	if err != nil {
		return errors.Wrapf(err, "create_table %s: read persisted fields", name)
	}
	if !ok {
		desc, err = r.Remote.GetFieldList(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "create_table %s: describe fields", name)
		}
		if err := r.Store.SaveFields(name, desc); err != nil {
			return errors.Wrapf(err, "create_table %s: save fields", name)
		}
	}

	tableName, cols, ddl := r.Schema.MakeCreateTable(desc)
	if len(cols) == 0 {
		return errors.Wrapf(types.ErrSchemaError, "create_table %s: no usable columns", name)
	}

	soqlFields := make([]string, 0, len(cols))
	for _, c := range cols {
		soqlFields = append(soqlFields, c.RemoteField)
	}
	selectStmt := makeSelectStatement(soqlFields, tableName)

	if err := r.Store.SaveColumnMap(name, cols); err != nil {
		return errors.Wrapf(err, "create_table %s: save column map", name)
	}
	if err := r.Store.SaveSelect(name, selectStmt); err != nil {
		return errors.Wrapf(err, "create_table %s: save select", name)
	}

	exists, err := r.Schema.TableExists(ctx, tableName)
	if err != nil {
		return errors.Wrapf(err, "create_table %s: table_exists", name)
	}
	if exists {
		return nil
	}

	r.log.Infof("creating table %s", tableName)
	if err := r.Schema.ExecDDL(ctx, ddl); err != nil {
		return errors.Wrapf(err, "create_table %s: exec ddl", name)
	}
	metrics.SchemaChanges.WithLabelValues(tableName, "create").Inc()

	r.log.Infof("creating indexes for %s", tableName)
	if err := r.Schema.MaintainIndexes(ctx, tableName, desc.Fields); err != nil {
		return errors.Wrapf(err, "create_table %s: maintain indexes", name)
	}
	return nil
}

func makeSelectStatement(fieldNames []string, sobjectName string) string {
	return "select " + strings.Join(fieldNames, ",\n") + " from " + sobjectName
}

// UpdateResult reports whether the sobject remains eligible for
// syncing after reconciliation: false means a drop was detected and
// auto_drop_columns is disabled, so the caller must skip this table
// for the current run.
type UpdateResult struct {
	OK bool
}

// UpdateSObjectDefinition diffs the remote field list against the
// local table's columns and applies additions/drops according to
// policy, the Go rewrite of update_sobject_definition.
func (r *Reconciler) UpdateSObjectDefinition(ctx context.Context, sobjectName string, allowAdd, allowDrop bool) (UpdateResult, error) {
	name := strings.ToLower(sobjectName)

	remoteDesc, err := r.Remote.GetFieldList(ctx, name)
	if err != nil {
		return UpdateResult{}, errors.Wrapf(err, "update_sobject_definition %s: describe fields", name)
	}
	tableCols, err := r.Schema.GetDBColumns(ctx, name)
	if err != nil {
		return UpdateResult{}, errors.Wrapf(err, "update_sobject_definition %s: get_db_columns", name)
	}

	tableColSet := make(map[string]bool, len(tableCols))
	for _, c := range tableCols {
		tableColSet[strings.ToLower(c)] = true
	}
	remoteFieldSet := remoteDesc.LowerNameSet()

	var newFieldNames, droppedFieldNames []string
	for f := range remoteFieldSet {
		if !tableColSet[f] {
			newFieldNames = append(newFieldNames, f)
		}
	}
	for c := range tableColSet {
		if _, ok := remoteFieldSet[c]; !ok {
			droppedFieldNames = append(droppedFieldNames, c)
		}
	}
	sort.Strings(newFieldNames)
	sort.Strings(droppedFieldNames)

	if len(newFieldNames) > 0 {
		if !allowAdd {
			r.log.Warnf("new column(s) found for %s, auto-create disabled, skipping", name)
		} else {
			if err := r.applyAddedColumns(ctx, name, remoteDesc, newFieldNames); err != nil {
				return UpdateResult{}, err
			}
		}
	}

	if len(droppedFieldNames) > 0 {
		if !allowDrop {
			r.log.Warnf("dropped column(s) detected for %s, auto-drop disabled, skipping", name)
			return UpdateResult{OK: false}, nil
		}
		if err := r.applyDroppedColumns(ctx, name, droppedFieldNames); err != nil {
			return UpdateResult{}, err
		}
	}

	if err := r.Store.SaveFields(name, remoteDesc); err != nil {
		return UpdateResult{}, errors.Wrapf(err, "update_sobject_definition %s: save fields", name)
	}
	return UpdateResult{OK: true}, nil
}

func (r *Reconciler) applyAddedColumns(ctx context.Context, name string, remoteDesc types.SObjectDescriptor, newFieldNames []string) error {
	var newFieldDefs []types.FieldDescriptor
	for _, fname := range newFieldNames {
		if fd, ok := remoteDesc.Find(fname); ok {
			newFieldDefs = append(newFieldDefs, fd)
		}
	}

	r.log.Infof("new columns found for %s, updating table and indexes", name)
	newCols, err := r.Schema.AlterTableAddColumns(ctx, name, newFieldDefs)
	if err != nil {
		return errors.Wrapf(err, "update_sobject_definition %s: alter_table_add_columns", name)
	}
	if len(newCols) == 0 {
		return nil
	}
	metrics.SchemaChanges.WithLabelValues(name, "create").Add(float64(len(newCols)))

	if err := r.Schema.MaintainIndexes(ctx, name, newFieldDefs); err != nil {
		return errors.Wrapf(err, "update_sobject_definition %s: maintain_indexes (added)", name)
	}

	cols, _, err := r.Store.GetColumnMap(name)
	if err != nil {
		return errors.Wrapf(err, "update_sobject_definition %s: read column map", name)
	}
	cols = append(cols, newCols...)
	if err := r.Store.SaveColumnMap(name, cols); err != nil {
		return errors.Wrapf(err, "update_sobject_definition %s: save column map", name)
	}

	soqlFields := make([]string, 0, len(cols))
	for _, c := range cols {
		soqlFields = append(soqlFields, c.RemoteField)
	}
	if err := r.Store.SaveSelect(name, makeSelectStatement(soqlFields, name)); err != nil {
		return errors.Wrapf(err, "update_sobject_definition %s: save select", name)
	}
	return nil
}

func (r *Reconciler) applyDroppedColumns(ctx context.Context, name string, droppedFieldNames []string) error {
	cols, _, err := r.Store.GetColumnMap(name)
	if err != nil {
		return errors.Wrapf(err, "update_sobject_definition %s: read column map", name)
	}

	dropped := make(map[string]bool, len(droppedFieldNames))
	for _, f := range droppedFieldNames {
		dropped[f] = true
	}

	var kept []types.ColumnMap
	for _, c := range cols {
		if !dropped[strings.ToLower(c.LocalField)] {
			kept = append(kept, c)
		}
	}

	r.log.Infof("dropped column(s) detected for %s", name)
	if err := r.Schema.AlterTableDropColumns(ctx, name, droppedFieldNames); err != nil {
		return errors.Wrapf(err, "update_sobject_definition %s: alter_table_drop_columns", name)
	}
	metrics.SchemaChanges.WithLabelValues(name, "drop").Add(float64(len(droppedFieldNames)))

	if err := r.Store.SaveColumnMap(name, kept); err != nil {
		return errors.Wrapf(err, "update_sobject_definition %s: save column map", name)
	}

	soqlFields := make([]string, 0, len(kept))
	for _, c := range kept {
		soqlFields = append(soqlFields, c.RemoteField)
	}
	return r.Store.SaveSelect(name, makeSelectStatement(soqlFields, name))
}

// InitializeConfig writes the initial (all-disabled) table
// configuration for a fresh environment, matching initialize_config;
// it errors if a configuration already exists rather than exiting the
// process, leaving that decision to the caller.
func (r *Reconciler) InitializeConfig(ctx context.Context, filters []string) error {
	existing, err := r.Store.GetConfiguredTables()
	if err != nil {
		return errors.Wrap(err, "initialize_config: read existing config")
	}
	if existing != nil {
		return errors.New("initialization halted: config already exists")
	}

	sobjects, err := r.Inspect(ctx, filters)
	if err != nil {
		return errors.Wrap(err, "initialize_config: inspect")
	}

	configs := make([]types.TableConfig, 0, len(sobjects))
	for _, s := range sobjects {
		configs = append(configs, types.TableConfig{
			Name:              strings.ToLower(s.Name),
			Enabled:           false,
			AutoCreateColumns: true,
			AutoDropColumns:   true,
			AutoScrub:         types.ScrubDaily,
		})
	}
	return r.Store.SaveConfiguredTables(configs)
}

// EnableTableSync flips the enabled flag for the named tables.
func (r *Reconciler) EnableTableSync(ctx context.Context, tableNames []string, flag bool) error {
	configs, err := r.Store.GetConfiguredTables()
	if err != nil {
		return errors.Wrap(err, "enable_table_sync: read config")
	}

	toEnable := make(map[string]bool, len(tableNames))
	for _, n := range tableNames {
		toEnable[strings.ToLower(n)] = true
	}

	for i := range configs {
		if toEnable[strings.ToLower(configs[i].Name)] {
			configs[i].Enabled = flag
		}
	}
	return r.Store.SaveConfiguredTables(configs)
}
