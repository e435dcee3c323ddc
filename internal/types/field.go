// Package types contains the data types and interfaces shared across
// Gurglefish's packages. Collecting them here, rather than in the
// packages that produce or consume them, keeps the dependency graph
// between SchemaDriver, RemoteClient, FieldMapStore and the engines
// acyclic.
package types

import "strings"

// FieldType is the remote field descriptor's type tag, as returned by
// the describe endpoint.
type FieldType string

const (
	FieldPicklist        FieldType = "picklist"
	FieldMultipicklist    FieldType = "multipicklist"
	FieldString           FieldType = "string"
	FieldTextarea         FieldType = "textarea"
	FieldEmail            FieldType = "email"
	FieldPhone            FieldType = "phone"
	FieldURL              FieldType = "url"
	FieldEncryptedString  FieldType = "encryptedstring"
	FieldCombobox         FieldType = "combobox"
	FieldDatetime         FieldType = "datetime"
	FieldDate             FieldType = "date"
	FieldTime             FieldType = "time"
	FieldID               FieldType = "id"
	FieldReference        FieldType = "reference"
	FieldBoolean          FieldType = "boolean"
	FieldDouble           FieldType = "double"
	FieldCurrency         FieldType = "currency"
	FieldInt              FieldType = "int"
	FieldPercent          FieldType = "percent"
	FieldBase64           FieldType = "base64"
	FieldAnyType          FieldType = "anyType"
	FieldAddress          FieldType = "address"
)

// FieldDescriptor is the remote shape of a single field on an sobject,
// as delivered by the describe endpoint.
type FieldDescriptor struct {
	Name        string
	Type        FieldType
	Length      int
	Precision   int
	Scale       int
	IsExternalID bool
	IsIDLookup   bool
	References   []string
}

// LowerName returns the lower-cased field name used for uniqueness and
// set comparisons throughout the schema reconciler.
func (f FieldDescriptor) LowerName() string {
	return strings.ToLower(f.Name)
}

// SObjectDescriptor is the canonical remote shape of an sobject at a
// point in time. Address fields are dropped during construction; see
// NewSObjectDescriptor.
type SObjectDescriptor struct {
	Name   string
	Fields []FieldDescriptor
}

// NewSObjectDescriptor builds a descriptor from a raw field list,
// dropping any "address" typed fields: they are aggregates of sibling
// scalar fields already present in the list and never become columns
// in their own right.
func NewSObjectDescriptor(name string, fields []FieldDescriptor) SObjectDescriptor {
	kept := make([]FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		if f.Type == FieldAddress {
			continue
		}
		kept = append(kept, f)
	}
	return SObjectDescriptor{Name: name, Fields: kept}
}

// LowerNameSet returns the set of lower-cased field names, for set
// comparisons against a local column set in the schema reconciler.
func (d SObjectDescriptor) LowerNameSet() map[string]struct{} {
	out := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		out[f.LowerName()] = struct{}{}
	}
	return out
}

// Find returns the field descriptor with the given name (case
// insensitive), or false if absent.
func (d SObjectDescriptor) Find(name string) (FieldDescriptor, bool) {
	lower := strings.ToLower(name)
	for _, f := range d.Fields {
		if f.LowerName() == lower {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// CanonicalID truncates an 18-char (or longer) remote id/reference
// value down to its case-sensitive 15-char functional prefix. Property
// 6 (id canonicalization) depends on every ingest path running values
// through this function exactly once.
func CanonicalID(id string) string {
	if len(id) > 15 {
		return id[:15]
	}
	return id
}
