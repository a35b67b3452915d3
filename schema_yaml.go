package schemata

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MaxDefinitionSize bounds the size of an application definition text.
const MaxDefinitionSize = 64 << 10

// ParseApplication decodes and validates an application definition. It
// fails on the first violation found.
func ParseApplication(text []byte) (*ApplicationDefinition, error) {
	if len(text) > MaxDefinitionSize {
		return nil, &Error{
			Type:    ErrorTypeValidation,
			Code:    ErrCodeSchemaTooLarge,
			Message: fmt.Sprintf("definition is %d bytes, limit is %d", len(text), MaxDefinitionSize),
		}
	}

	var def ApplicationDefinition
	if err := yaml.Unmarshal(text, &def); err != nil {
		var se *Error
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, NewSchemaError("malformed definition: %v", err).WithCause(err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

type rawModel struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Fields      []FieldDefinition `yaml:"fields"`
	Visibility  string            `yaml:"visibility_scope"`
}

func (m *ModelDefinition) UnmarshalYAML(node *yaml.Node) error {
	var raw rawModel
	if err := node.Decode(&raw); err != nil {
		return err
	}
	scope := VisibilityEveryone
	if raw.Visibility != "" {
		scope = VisibilityScope(raw.Visibility)
	}
	*m = ModelDefinition{
		Name:        raw.Name,
		Description: raw.Description,
		Fields:      raw.Fields,
		Visibility:  scope,
	}
	return nil
}

type rawField struct {
	Type        string `yaml:"type"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Optional    bool   `yaml:"optional"`
	DefaultNow  bool   `yaml:"default_now"`
	Target      string `yaml:"target"`
}

func (f *FieldDefinition) UnmarshalYAML(node *yaml.Node) error {
	var raw rawField
	if err := node.Decode(&raw); err != nil {
		return err
	}
	t := FieldType(raw.Type)
	if !t.Valid() {
		return NewSchemaError("line %d: unknown field type %q", node.Line, raw.Type)
	}
	*f = FieldDefinition{
		Type:        t,
		Name:        raw.Name,
		Description: raw.Description,
		Optional:    raw.Optional,
	}
	switch t {
	case FieldDateTime:
		f.DefaultNow = raw.DefaultNow
	case FieldReference:
		f.Target = raw.Target
	}
	return nil
}

type rawEndpoint struct {
	Type        string        `yaml:"type"`
	Name        string        `yaml:"name"`
	Path        string        `yaml:"path"`
	Description string        `yaml:"description"`
	Access      *[]AccessRule `yaml:"access"`
	Response    string        `yaml:"response"`
	LocalFile   string        `yaml:"localfile"`
	Model       string        `yaml:"model"`
}

func (e *Endpoint) UnmarshalYAML(node *yaml.Node) error {
	var raw rawEndpoint
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*e = Endpoint{
		Kind:        EndpointKind(raw.Type),
		Name:        raw.Name,
		Path:        raw.Path,
		Description: raw.Description,
	}
	if raw.Access != nil {
		e.Access = append([]AccessRule{}, *raw.Access...)
	}
	switch e.Kind {
	case EndpointString:
		e.Response = raw.Response
	case EndpointStaticFile:
		e.LocalFile = raw.LocalFile
	case EndpointModel:
		e.Model = raw.Model
	case EndpointGraphQL:
	default:
		return NewSchemaError("line %d: unknown endpoint type %q", node.Line, raw.Type)
	}
	return nil
}

type rawRule struct {
	Action *string `yaml:"action"`
	Method *string `yaml:"method"`
	Role   *string `yaml:"role"`
}

func (r *AccessRule) UnmarshalYAML(node *yaml.Node) error {
	var raw rawRule
	if err := node.Decode(&raw); err != nil {
		return err
	}
	rule := AccessRule{Action: ActionAllow}
	if raw.Action != nil {
		action, err := parseAction(*raw.Action)
		if err != nil {
			return NewSchemaError("line %d: %v", node.Line, err)
		}
		rule.Action = action
	}
	if raw.Method != nil {
		switch m := Method(*raw.Method); m {
		case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
			rule.Method = m
		default:
			return NewSchemaError("line %d: unknown method %q", node.Line, *raw.Method)
		}
	}
	if raw.Role != nil {
		if !validIdentifier(*raw.Role) {
			return NewSchemaError("line %d: invalid role %q", node.Line, *raw.Role)
		}
		rule.Role = *raw.Role
	}
	*r = rule
	return nil
}

func parseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAllow, ActionDeny:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

type rawAPI struct {
	Endpoints     []Endpoint `yaml:"endpoints"`
	DefaultAccess yaml.Node  `yaml:"default_access"`
}

// UnmarshalYAML accepts default_access either as a bare action keyword or
// as a list of rules.
func (a *APIDefinition) UnmarshalYAML(node *yaml.Node) error {
	var raw rawAPI
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*a = APIDefinition{Endpoints: raw.Endpoints}

	switch raw.DefaultAccess.Kind {
	case 0:
	case yaml.ScalarNode:
		if raw.DefaultAccess.Tag == "!!null" {
			break
		}
		action, err := parseAction(raw.DefaultAccess.Value)
		if err != nil {
			return NewSchemaError("line %d: default_access: %v", raw.DefaultAccess.Line, err)
		}
		a.DefaultAccess = []AccessRule{{Action: action}}
	case yaml.SequenceNode:
		rules := []AccessRule{}
		if err := raw.DefaultAccess.Decode(&rules); err != nil {
			return err
		}
		a.DefaultAccess = rules
	default:
		return NewSchemaError("line %d: default_access must be an action or a rule list", raw.DefaultAccess.Line)
	}
	return nil
}
