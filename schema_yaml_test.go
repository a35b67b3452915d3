package schemata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const todoDefinition = `
name: todo
meta:
  schema: v0.0.1
models:
  - name: Todo
    description: things to do
    visibility_scope: owner
    fields:
      - {type: string, name: title}
      - {type: boolean, name: done, optional: true}
      - {type: datetime, name: due, default_now: true}
      - {type: reference, name: parent, target: Todo, optional: true}
      - {type: user, name: assignee, optional: true}
      - {type: float, name: weight, optional: true}
  - name: Tag
    fields:
      - {type: string, name: label}
api:
  default_access: allow
  endpoints:
    - {type: string, name: hello, path: /hello, response: "hi there"}
    - {type: staticfile, name: logo, path: /logo.png, localfile: static/logo.png}
    - type: model
      name: todos
      path: /todos
      model: Todo
      access:
        - {method: get, role: anonymous}
        - {action: deny}
    - {type: graphql, name: gql, path: /graphql}
`

func TestParseApplication_Todo(t *testing.T) {
	def, err := ParseApplication([]byte(todoDefinition))
	require.NoError(t, err)

	assert.Equal(t, "todo", def.Name)
	assert.Equal(t, SupportedSchemaVersion, def.Meta.Schema)
	require.Len(t, def.Models, 2)

	todo, ok := def.GetModel("Todo")
	require.True(t, ok)
	assert.Equal(t, VisibilityOwner, todo.Visibility)
	assert.Equal(t, []string{"title", "done", "due", "parent", "assignee", "weight"}, todo.FieldNames())

	due, ok := todo.Field("due")
	require.True(t, ok)
	assert.Equal(t, FieldDateTime, due.Type)
	assert.True(t, due.HasDefault())

	parent, _ := todo.Field("parent")
	assert.Equal(t, "Todo", parent.Target)

	tag, ok := def.GetModel("Tag")
	require.True(t, ok)
	assert.Equal(t, VisibilityEveryone, tag.Visibility, "visibility defaults to everyone")

	_, ok = def.GetModel("Missing")
	assert.False(t, ok)

	ep, ok := def.FindEndpoint("/todos")
	require.True(t, ok)
	assert.Equal(t, EndpointModel, ep.Kind)
	assert.Equal(t, "Todo", ep.Model)
	assert.Equal(t, []AccessRule{
		{Action: ActionAllow, Method: MethodGet, Role: RoleAnonymous},
		{Action: ActionDeny},
	}, ep.Access)

	hello, ok := def.FindEndpoint("/hello")
	require.True(t, ok)
	assert.Equal(t, "hi there", hello.Response)
	assert.Nil(t, hello.Access)

	_, ok = def.FindEndpoint("/todos/")
	assert.False(t, ok, "paths match exactly")

	assert.Equal(t, []AccessRule{{Action: ActionAllow}}, def.API.DefaultAccess)
}

func TestParseApplication_Deterministic(t *testing.T) {
	a, err := ParseApplication([]byte(todoDefinition))
	require.NoError(t, err)
	b, err := ParseApplication([]byte(todoDefinition))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseApplication_DefaultAccessForms(t *testing.T) {
	base := "name: a\nmeta: {schema: v0.0.1}\napi:\n  endpoints: []\n"

	def, err := ParseApplication([]byte(base))
	require.NoError(t, err)
	assert.Nil(t, def.API.DefaultAccess)

	def, err = ParseApplication([]byte(base + "  default_access: deny\n"))
	require.NoError(t, err)
	assert.Equal(t, []AccessRule{{Action: ActionDeny}}, def.API.DefaultAccess)

	def, err = ParseApplication([]byte(base + "  default_access:\n    - {method: get}\n    - {role: admin, action: deny}\n"))
	require.NoError(t, err)
	assert.Equal(t, []AccessRule{
		{Action: ActionAllow, Method: MethodGet},
		{Action: ActionDeny, Role: RoleAdmin},
	}, def.API.DefaultAccess)

	def, err = ParseApplication([]byte(base + "  default_access: []\n"))
	require.NoError(t, err)
	assert.NotNil(t, def.API.DefaultAccess)
	assert.Empty(t, def.API.DefaultAccess)
}

func TestParseApplication_Rejects(t *testing.T) {
	header := "name: a\nmeta: {schema: v0.0.1}\n"
	model := func(fields string) string {
		return header + "models:\n  - name: M\n    fields:\n" + fields
	}
	endpoint := func(ep string) string {
		return header + "api:\n  endpoints:\n    - " + ep + "\n"
	}

	tests := []struct {
		name      string
		text      string
		errSubstr string
	}{
		{"bad version", "name: a\nmeta: {schema: v0.0.2}\n", "unsupported schema version"},
		{"missing version", "name: a\n", "unsupported schema version"},
		{"bad app name", "name: a-b\nmeta: {schema: v0.0.1}\n", "invalid application name"},
		{"empty document", "", "invalid application name"},
		{"unknown field type", model("      - {type: blob, name: x}\n"), "unknown field type"},
		{"bad field name", model("      - {type: string, name: \"x y\"}\n"), "invalid field name"},
		{"empty field name", model("      - {type: string, name: \"\"}\n"), "invalid field name"},
		{"reserved id field", model("      - {type: string, name: id}\n"), "reserved"},
		{"reserved underscore field", model("      - {type: string, name: _owner}\n"), "reserved"},
		{"duplicate field", model("      - {type: string, name: x}\n      - {type: integer, name: x}\n"), "duplicate field"},
		{"dangling reference", model("      - {type: reference, name: r, target: Nope}\n"), "unknown model"},
		{"description with control char", model("      - {type: string, name: x, description: \"a\\tb\"}\n"), "invalid description"},
		{"description too long", model("      - {type: string, name: x, description: " + strings.Repeat("d", 1025) + "}\n"), "invalid description"},
		{"reserved model prefix", header + "models:\n  - name: __sys_x\n", "reserved prefix"},
		{"duplicate model", header + "models:\n  - name: M\n  - name: M\n", "duplicate model"},
		{"reserved model prefix upper case", header + "models:\n  - name: __SYS_user\n", "reserved prefix"},
		{"reserved model prefix mixed case", header + "models:\n  - name: __Sys_x\n", "reserved prefix"},
		{"duplicate model differing in case", header + "models:\n  - name: Secret\n    visibility_scope: owner\n  - name: secret\n", "duplicate model"},
		{"duplicate field differing in case", model("      - {type: string, name: Title}\n      - {type: string, name: title}\n"), "duplicate field"},
		{"reserved id field upper case", model("      - {type: integer, name: ID}\n"), "reserved"},
		{"bad visibility", header + "models:\n  - name: M\n    visibility_scope: friends\n", "unknown visibility"},
		{"unknown endpoint type", endpoint("{type: rpc, name: e, path: /e}"), "unknown endpoint type"},
		{"bad path", endpoint("{type: graphql, name: e, path: \"/a b\"}"), "invalid path"},
		{"response too long", endpoint("{type: string, name: e, path: /e, response: " + strings.Repeat("r", 4097) + "}"), "invalid response"},
		{"escaping local file", endpoint("{type: staticfile, name: e, path: /e, localfile: ../secret}"), "escapes"},
		{"absolute local file", endpoint("{type: staticfile, name: e, path: /e, localfile: /etc/passwd}"), "invalid local file"},
		{"bad model reference", endpoint("{type: model, name: e, path: /e, model: \"a.b\"}"), "invalid model name"},
		{"bad method", endpoint("{type: graphql, name: e, path: /e, access: [{method: fetch}]}"), "unknown method"},
		{"bad action", endpoint("{type: graphql, name: e, path: /e, access: [{action: maybe}]}"), "unknown action"},
		{"bad role", endpoint("{type: graphql, name: e, path: /e, access: [{role: \"a b\"}]}"), "invalid role"},
		{"bad default keyword", header + "api:\n  default_access: sometimes\n", "default_access"},
		{"malformed yaml", "name: [a\n", "malformed definition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseApplication([]byte(tt.text))
			require.Error(t, err)
			assert.True(t, IsType(err, ErrorTypeValidation), "got %v", err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestParseApplication_SizeLimit(t *testing.T) {
	text := "name: a\nmeta: {schema: v0.0.1}\n# " + strings.Repeat("x", MaxDefinitionSize) + "\n"
	_, err := ParseApplication([]byte(text))
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrCodeSchemaTooLarge, e.Code)
}

func TestParseApplication_ReferenceToSystemUserModel(t *testing.T) {
	text := "name: a\nmeta: {schema: v0.0.1}\nmodels:\n  - name: Post\n    fields:\n      - {type: reference, name: author, target: __sys_user}\n"
	def, err := ParseApplication([]byte(text))
	require.NoError(t, err)

	models := def.StorageModels()
	require.Len(t, models, 2)
	assert.Equal(t, SystemUserModelName, models[0].Name)
	assert.True(t, models[0].IsSystem())
	assert.Equal(t, "Post", models[1].Name)
}
