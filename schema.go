package schemata

import "strings"

// SupportedSchemaVersion is the only accepted value of meta.schema.
const SupportedSchemaVersion = "v0.0.1"

// SystemPrefix marks models owned by the engine rather than the application.
const SystemPrefix = "__sys"

// SystemUserModelName is the table holding per-application user identities.
const SystemUserModelName = SystemPrefix + "_user"

// Implicit columns present on every model table.
const (
	ColumnID         = "id"
	ColumnOwner      = "_owner"
	ColumnCreateTime = "_create_time"
	ColumnUpdateTime = "_update_time"
)

// VisibilityScope is the row-level policy of a model.
type VisibilityScope string

const (
	VisibilityEveryone VisibilityScope = "everyone"
	VisibilityOwner    VisibilityScope = "owner"
)

// FieldDefinition is one typed attribute of a model. DefaultNow applies to
// datetime fields and Target to reference fields only.
type FieldDefinition struct {
	Type        FieldType
	Name        string
	Description string
	Optional    bool
	DefaultNow  bool
	Target      string
}

// HasDefault reports whether create fills the field when absent.
func (f *FieldDefinition) HasDefault() bool {
	return f.Type == FieldDateTime && f.DefaultNow
}

// ModelDefinition is a named record schema mapped to one table.
type ModelDefinition struct {
	Name        string
	Description string
	Fields      []FieldDefinition
	Visibility  VisibilityScope
}

// Field looks up a declared field by name.
func (m *ModelDefinition) Field(name string) (*FieldDefinition, bool) {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// FieldNames returns declared field names in declaration order.
func (m *ModelDefinition) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// IsSystem reports whether the model is engine-owned.
func (m *ModelDefinition) IsSystem() bool {
	return IsSystemModel(m.Name)
}

// IsSystemModel reports whether name carries the system prefix. Storage
// identifiers are case-insensitive, so the prefix is too.
func IsSystemModel(name string) bool {
	return len(name) >= len(SystemPrefix) && strings.EqualFold(name[:len(SystemPrefix)], SystemPrefix)
}

// EndpointKind discriminates endpoint variants.
type EndpointKind string

const (
	EndpointString     EndpointKind = "string"
	EndpointStaticFile EndpointKind = "staticfile"
	EndpointModel      EndpointKind = "model"
	EndpointGraphQL    EndpointKind = "graphql"
)

// Endpoint is one entry of the API surface. Response, LocalFile and Model
// are the payloads of the string, staticfile and model variants.
type Endpoint struct {
	Kind        EndpointKind
	Name        string
	Path        string
	Description string

	// Access is nil when the endpoint declares no rules of its own.
	Access []AccessRule

	Response  string
	LocalFile string
	Model     string
}

// Action is the outcome of a matching access rule.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Allowed reports whether the action permits the request.
func (a Action) Allowed() bool {
	return a != ActionDeny
}

// AccessRule is one (method, role) -> action entry. Empty Method matches
// any method; empty Role matches any caller.
type AccessRule struct {
	Action Action
	Method Method
	Role   string
}

// APIDefinition holds the endpoints and the default rules applied to
// endpoints without rules of their own.
type APIDefinition struct {
	Endpoints []Endpoint

	// DefaultAccess is nil when no default is declared.
	DefaultAccess []AccessRule
}

// Meta carries versioning information of a definition.
type Meta struct {
	Schema string `yaml:"schema"`
}

// ApplicationDefinition is the full declarative description of one
// application.
type ApplicationDefinition struct {
	Name   string            `yaml:"name"`
	Meta   Meta              `yaml:"meta"`
	Models []ModelDefinition `yaml:"models"`
	API    APIDefinition     `yaml:"api"`
}

// FindEndpoint returns the first endpoint whose path equals path exactly.
func (d *ApplicationDefinition) FindEndpoint(path string) (*Endpoint, bool) {
	for i := range d.API.Endpoints {
		if d.API.Endpoints[i].Path == path {
			return &d.API.Endpoints[i], true
		}
	}
	return nil, false
}

// GetModel looks up a declared model by exact name. The system user model
// is not returned here; use SystemUserModel.
func (d *ApplicationDefinition) GetModel(name string) (*ModelDefinition, bool) {
	for i := range d.Models {
		if d.Models[i].Name == name {
			return &d.Models[i], true
		}
	}
	return nil, false
}

// StorageModels returns every model that needs a table, system models first.
func (d *ApplicationDefinition) StorageModels() []*ModelDefinition {
	models := make([]*ModelDefinition, 0, len(d.Models)+1)
	models = append(models, SystemUserModel())
	for i := range d.Models {
		models = append(models, &d.Models[i])
	}
	return models
}

// SystemUserModel is the internal per-application user table.
func SystemUserModel() *ModelDefinition {
	return &ModelDefinition{
		Name:        SystemUserModelName,
		Description: "application users",
		Visibility:  VisibilityEveryone,
		Fields: []FieldDefinition{
			{Type: FieldString, Name: "name"},
			{Type: FieldString, Name: "email"},
			{Type: FieldString, Name: "password"},
			{Type: FieldString, Name: "token"},
		},
	}
}
