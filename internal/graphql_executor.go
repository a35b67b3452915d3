package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/lychee-technology/schemata"
	"github.com/lychee-technology/schemata/internal/graphql"
	"go.uber.org/zap"
)

// rowReader is the read path the GraphQL executor needs.
type rowReader interface {
	Select(ctx context.Context, model *schemata.ModelDefinition, actor schemata.Actor, id *int64) ([]schemata.Row, error)
}

// GraphQLExecutor answers read-only queries one level deep: each top-level
// field names a model and its sub-fields name columns.
type GraphQLExecutor struct{}

type modelSelection struct {
	model  *schemata.ModelDefinition
	fields []string
}

// Execute validates the whole document against def before reading
// anything, then returns the {"data": [...]} envelope with one element
// per top-level field.
func (GraphQLExecutor) Execute(ctx context.Context, def *schemata.ApplicationDefinition, reader rowReader, actor schemata.Actor, text string) ([]byte, error) {
	doc, err := graphql.Parse(text)
	if err != nil {
		e := schemata.NewError(schemata.ErrorTypeUnsupportedQuery, schemata.ErrCodeQuerySyntax, "query syntax error: "+err.Error()).WithCause(err)
		var serr *graphql.SyntaxError
		if errors.As(err, &serr) {
			e.WithDetail("line", serr.Pos.Line).WithDetail("column", serr.Pos.Column)
		}
		return nil, e
	}

	plan, err := planDocument(def, doc)
	if err != nil {
		return nil, err
	}

	data := make([]json.RawMessage, 0, len(plan))
	for _, sel := range plan {
		rows, err := reader.Select(ctx, sel.model, actor, nil)
		if err != nil {
			return nil, err
		}
		out, err := projectRows(sel, rows)
		if err != nil {
			return nil, err
		}
		data = append(data, out)
	}
	zap.S().Debugw("graphql query executed", "selections", len(plan), "actor", actor.String())
	return json.Marshal(map[string]any{"data": data})
}

func planDocument(def *schemata.ApplicationDefinition, doc *graphql.Document) ([]modelSelection, error) {
	var plan []modelSelection
	for _, d := range doc.Definitions {
		if d.Fragment != nil {
			return nil, schemata.NewUnsupportedQueryError("fragment definition")
		}
		op := d.Operation
		switch op.Type {
		case "", "query":
		default:
			return nil, schemata.NewUnsupportedQueryError(op.Type + " operation")
		}
		if len(op.Variables) > 0 {
			return nil, schemata.NewUnsupportedQueryError("variable definitions")
		}
		if len(op.Directives) > 0 {
			return nil, schemata.NewUnsupportedQueryError("directives")
		}
		for _, s := range op.SelectionSet.Selections {
			f, err := plainField(s)
			if err != nil {
				return nil, err
			}
			if f.SelectionSet == nil {
				return nil, schemata.NewUnsupportedQueryError("missing selection set")
			}
			model, ok := def.GetModel(f.Name())
			if !ok {
				return nil, schemata.NewUnsupportedQueryError("unknown model " + f.Name()).
					WithCause(schemata.NewNotFoundError("model", f.Name()))
			}
			sel := modelSelection{model: model}
			for _, sub := range f.SelectionSet.Selections {
				sf, err := plainField(sub)
				if err != nil {
					return nil, err
				}
				if sf.SelectionSet != nil {
					return nil, schemata.NewUnsupportedQueryError("nested selection")
				}
				name := sf.Name()
				if _, ok := model.Field(name); !ok && name != schemata.ColumnID {
					return nil, schemata.NewUnsupportedQueryError("unknown field " + model.Name + "." + name).
						WithCause(schemata.NewNotFoundError("field", name).WithModel(model.Name))
				}
				sel.fields = append(sel.fields, name)
			}
			plan = append(plan, sel)
		}
	}
	return plan, nil
}

// plainField returns the selection as a field without alias, arguments
// or directives.
func plainField(s *graphql.Selection) (*graphql.Field, error) {
	if fs := s.Fragment; fs != nil {
		if fs.SelectionSet != nil {
			return nil, schemata.NewUnsupportedQueryError("inline fragment")
		}
		return nil, schemata.NewUnsupportedQueryError("fragment spread")
	}
	f := s.Field
	if f.Alias() != "" {
		return nil, schemata.NewUnsupportedQueryError("field alias")
	}
	if len(f.Arguments) > 0 {
		return nil, schemata.NewUnsupportedQueryError("field arguments")
	}
	if len(f.Directives) > 0 {
		return nil, schemata.NewUnsupportedQueryError("directives")
	}
	return f, nil
}

// projectRows renders rows as objects holding the requested names in
// request order.
func projectRows(sel modelSelection, rows []schemata.Row) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, name := range sel.fields {
			v, ok := row[name]
			if !ok {
				return nil, schemata.NewNotFoundError("field", name).WithModel(sel.model.Name)
			}
			if j > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(name)
			buf.Write(key)
			buf.WriteByte(':')
			val, err := json.Marshal(v)
			if err != nil {
				return nil, schemata.NewStorageError("encode value", err).WithModel(sel.model.Name).WithField(name)
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
