package types

import "strings"

// ScrubPolicy controls how often the tombstone-reconciliation backstop
// runs for a table.
type ScrubPolicy string

const (
	ScrubAlways ScrubPolicy = "always"
	ScrubDaily  ScrubPolicy = "daily"
	ScrubNever  ScrubPolicy = "never"
)

// TableConfig is the per-sobject sync configuration persisted in
// config.json under `configuration.sobjects`.
type TableConfig struct {
	Name              string      `json:"name"`
	Enabled           bool        `json:"enabled"`
	AutoCreateColumns bool        `json:"auto_create_columns"`
	AutoDropColumns   bool        `json:"auto_drop_columns"`
	AutoScrub         ScrubPolicy `json:"auto_scrub"`
	UseBulkAPI        bool        `json:"bulkapi"`
}

// CanonicalName lower-cases the table name the way every other part of
// the system expects it (SyncEngine, SchemaDriver, FieldMapStore keys).
func (t TableConfig) CanonicalName() string {
	return strings.ToLower(t.Name)
}

// DBVendor selects the SchemaDriver implementation a ConnectionProfile
// binds to.
type DBVendor string

const (
	VendorPostgres DBVendor = "postgres"
	VendorMySQL    DBVendor = "mysql"
)

// ConnectionProfile is immutable once loaded; workers hold a read-only
// reference to it and each opens its own SchemaDriver connection from
// it.
type ConnectionProfile struct {
	ID string `json:"id"`

	// Remote auth. Token acquisition (OAuth) happens outside the core
	// engine; the profile only carries what RemoteClient needs to make
	// authenticated calls once a token exists.
	AccessToken string `json:"-"`
	InstanceURL string `json:"instance_url"`
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	Login          string `json:"login"`
	Password       string `json:"password"`
	AuthURL        string `json:"authurl"`

	DBVendor DBVendor `json:"dbvendor"`
	DBHost   string   `json:"dbhost"`
	DBPort   string   `json:"dbport"`
	DBName   string   `json:"dbname"`
	DBUser   string   `json:"dbuser"`
	DBPass   string   `json:"dbpass"`
	Schema   string   `json:"schema"`

	Threads int `json:"threads"`
}

// EffectiveSchema returns the configured schema, or "public" when
// unset.
func (c ConnectionProfile) EffectiveSchema() string {
	if c.Schema == "" {
		return "public"
	}
	return c.Schema
}

// WorkerCount clamps the configured thread count to [1,4].
func (c ConnectionProfile) WorkerCount() int {
	if c.Threads < 1 {
		return 1
	}
	if c.Threads > 4 {
		return 4
	}
	return c.Threads
}
