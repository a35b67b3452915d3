package schemata

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

const (
	maxDescriptionBytes = 1024
	maxResponseBytes    = 4096
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	pathPattern       = regexp.MustCompile(`^[A-Za-z0-9_/.-]+$`)
)

func validIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func validPath(s string) bool {
	return pathPattern.MatchString(s)
}

// validText accepts at most limit bytes and no control characters.
func validText(s string, limit int) bool {
	if len(s) > limit {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ValidIdentifier reports whether s can name an application, model or field.
func ValidIdentifier(s string) bool {
	return validIdentifier(s)
}

// Validate checks the whole definition and returns the first violation.
func (d *ApplicationDefinition) Validate() error {
	if !validIdentifier(d.Name) {
		return NewSchemaError("invalid application name %q", d.Name)
	}
	if d.Meta.Schema != SupportedSchemaVersion {
		return NewSchemaError("unsupported schema version %q, expected %s", d.Meta.Schema, SupportedSchemaVersion)
	}

	// Table names are case-insensitive in storage, so Todo and todo collide.
	seen := make(map[string]struct{}, len(d.Models))
	folded := make(map[string]string, len(d.Models))
	for i := range d.Models {
		m := &d.Models[i]
		if err := m.validate(); err != nil {
			return err
		}
		if other, dup := folded[strings.ToLower(m.Name)]; dup {
			return NewSchemaError("duplicate model %q (collides with %q)", m.Name, other)
		}
		folded[strings.ToLower(m.Name)] = m.Name
		seen[m.Name] = struct{}{}
	}

	// Reference targets are resolved once every model name is known.
	for i := range d.Models {
		m := &d.Models[i]
		for j := range m.Fields {
			f := &m.Fields[j]
			if f.Type != FieldReference {
				continue
			}
			if _, ok := seen[f.Target]; !ok && f.Target != SystemUserModelName {
				return NewSchemaError("model %s: field %s references unknown model %q", m.Name, f.Name, f.Target)
			}
		}
	}

	return d.API.validate()
}

func (m *ModelDefinition) validate() error {
	if !validIdentifier(m.Name) {
		return NewSchemaError("invalid model name %q", m.Name)
	}
	if IsSystemModel(m.Name) {
		return NewSchemaError("model name %q uses the reserved prefix %s", m.Name, SystemPrefix)
	}
	if !validText(m.Description, maxDescriptionBytes) {
		return NewSchemaError("model %s: invalid description", m.Name)
	}
	switch m.Visibility {
	case VisibilityEveryone, VisibilityOwner:
	default:
		return NewSchemaError("model %s: unknown visibility scope %q", m.Name, m.Visibility)
	}

	seen := make(map[string]string, len(m.Fields))
	for i := range m.Fields {
		f := &m.Fields[i]
		if err := f.validate(m.Name); err != nil {
			return err
		}
		key := strings.ToLower(f.Name)
		if other, dup := seen[key]; dup {
			return NewSchemaError("model %s: duplicate field %q (collides with %q)", m.Name, f.Name, other)
		}
		seen[key] = f.Name
	}
	return nil
}

func (f *FieldDefinition) validate(model string) error {
	if !validIdentifier(f.Name) {
		return NewSchemaError("model %s: invalid field name %q", model, f.Name)
	}
	if strings.EqualFold(f.Name, ColumnID) || strings.HasPrefix(f.Name, "_") {
		return NewSchemaError("model %s: field name %q is reserved", model, f.Name)
	}
	if !f.Type.Valid() {
		return NewSchemaError("model %s: field %s has unknown type %q", model, f.Name, f.Type)
	}
	if !validText(f.Description, maxDescriptionBytes) {
		return NewSchemaError("model %s: field %s has an invalid description", model, f.Name)
	}
	if f.Type == FieldReference && !validIdentifier(f.Target) {
		return NewSchemaError("model %s: field %s has invalid target %q", model, f.Name, f.Target)
	}
	return nil
}

func (a *APIDefinition) validate() error {
	for i := range a.Endpoints {
		if err := a.Endpoints[i].validate(); err != nil {
			return err
		}
	}
	for _, r := range a.DefaultAccess {
		if err := r.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) validate() error {
	if !validIdentifier(e.Name) {
		return NewSchemaError("invalid endpoint name %q", e.Name)
	}
	if !validPath(e.Path) {
		return NewSchemaError("endpoint %s: invalid path %q", e.Name, e.Path)
	}
	if !validText(e.Description, maxDescriptionBytes) {
		return NewSchemaError("endpoint %s: invalid description", e.Name)
	}
	for _, r := range e.Access {
		if err := r.validate(); err != nil {
			return NewSchemaError("endpoint %s: %s", e.Name, err.Message)
		}
	}

	switch e.Kind {
	case EndpointString:
		if !validText(e.Response, maxResponseBytes) {
			return NewSchemaError("endpoint %s: invalid response text", e.Name)
		}
	case EndpointStaticFile:
		if !validPath(e.LocalFile) || path.IsAbs(e.LocalFile) {
			return NewSchemaError("endpoint %s: invalid local file %q", e.Name, e.LocalFile)
		}
		for _, seg := range strings.Split(e.LocalFile, "/") {
			if seg == ".." {
				return NewSchemaError("endpoint %s: local file %q escapes the application directory", e.Name, e.LocalFile)
			}
		}
	case EndpointModel:
		if !validIdentifier(e.Model) {
			return NewSchemaError("endpoint %s: invalid model name %q", e.Name, e.Model)
		}
	case EndpointGraphQL:
	default:
		return NewSchemaError("endpoint %s: unknown type %q", e.Name, e.Kind)
	}
	return nil
}

func (r AccessRule) validate() *Error {
	switch r.Action {
	case ActionAllow, ActionDeny:
	default:
		return NewSchemaError("unknown action %q", r.Action)
	}
	switch r.Method {
	case "", MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
	default:
		return NewSchemaError("unknown method %q", r.Method)
	}
	if r.Role != "" && !validIdentifier(r.Role) {
		return NewSchemaError("invalid role %q", r.Role)
	}
	return nil
}
