package internal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/schemata"
)

// rowValidator checks the JSON types of incoming rows against a model
// before they reach storage. Presence of required fields is left to the
// store so a missing field keeps its own error type.
type rowValidator struct {
	model  string
	create *jsonschema.Resolved
	update *jsonschema.Resolved
}

func newRowValidator(model *schemata.ModelDefinition) (*rowValidator, error) {
	create, err := compileRowSchema(model, false)
	if err != nil {
		return nil, err
	}
	update, err := compileRowSchema(model, true)
	if err != nil {
		return nil, err
	}
	return &rowValidator{model: model.Name, create: create, update: update}, nil
}

// compileRowSchema renders the model as a JSON schema document. On create
// every field accepts null, which the store treats as absent. On update
// only optional fields may be nulled and undeclared names are rejected.
func compileRowSchema(model *schemata.ModelDefinition, forUpdate bool) (*jsonschema.Resolved, error) {
	props := make(map[string]any, len(model.Fields)+1)
	for i := range model.Fields {
		f := &model.Fields[i]
		if forUpdate && !f.Optional {
			props[f.Name] = map[string]any{"type": f.Type.JSONType()}
			continue
		}
		props[f.Name] = map[string]any{"type": []string{f.Type.JSONType(), "null"}}
	}
	schemaMap := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if forUpdate {
		props[schemata.ColumnID] = map[string]any{"type": "integer"}
		schemaMap["additionalProperties"] = false
	}

	schemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row schema for %s: %w", model.Name, err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve row schema for %s: %w", model.Name, err)
	}
	return resolved, nil
}

func (v *rowValidator) ValidateCreate(row schemata.Row) error {
	return v.validate(v.create, row)
}

func (v *rowValidator) ValidateUpdate(row schemata.Row) error {
	return v.validate(v.update, row)
}

func (v *rowValidator) validate(schema *jsonschema.Resolved, row schemata.Row) error {
	if err := schema.Validate(rowDocument(row)); err != nil {
		return schemata.NewValidationError("", err.Error()).WithModel(v.model).WithCause(err)
	}
	return nil
}

// rowDocument converts a row to the shape json.Unmarshal produces, which
// is what the validator understands: numbers become float64.
func rowDocument(row schemata.Row) map[string]any {
	doc := make(map[string]any, len(row))
	for name, val := range row {
		switch val.Kind() {
		case schemata.KindInteger, schemata.KindDateTime:
			i, _ := val.Int()
			doc[name] = float64(i)
		default:
			doc[name] = val.Interface()
		}
	}
	return doc
}

// validatorSet compiles row validators on first use. A set belongs to one
// parsed definition and is dropped with it.
type validatorSet struct {
	mu     sync.Mutex
	byName map[string]*rowValidator
}

func newValidatorSet() *validatorSet {
	return &validatorSet{byName: make(map[string]*rowValidator)}
}

func (s *validatorSet) get(model *schemata.ModelDefinition) (*rowValidator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.byName[model.Name]; ok {
		return v, nil
	}
	v, err := newRowValidator(model)
	if err != nil {
		return nil, schemata.NewSchemaError("cannot compile row schema for %s: %v", model.Name, err).WithModel(model.Name)
	}
	s.byName[model.Name] = v
	return v, nil
}
