package internal

import (
	"context"
	"testing"

	"github.com/lychee-technology/schemata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRUDExecutorLifecycle(t *testing.T) {
	ctx := context.Background()
	def := mustParse(t, todoApp)
	store := openSyncedStore(t, schemata.DialectSQLite, def)
	exec := newCRUDExecutor(store, nil)
	todo := mustModel(t, def, "Todo")
	alice := schemata.User(1)

	got, err := exec.Execute(ctx, CRUDOperation{Type: schemata.OperationList, Model: todo}, alice)
	require.NoError(t, err)
	assert.Equal(t, []schemata.Row{}, got, "an empty list is an empty array, not null")

	got, err = exec.Execute(ctx, CRUDOperation{
		Type:  schemata.OperationCreate,
		Model: todo,
		Row:   schemata.Row{"title": schemata.StringValue("write tests"), "weight": schemata.IntegerValue(2)},
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = exec.Execute(ctx, CRUDOperation{Type: schemata.OperationGet, Model: todo, ID: 1}, alice)
	require.NoError(t, err)
	rows := got.([]schemata.Row)
	require.Len(t, rows, 1)
	assert.Equal(t, schemata.FloatValue(2), rows[0]["weight"], "integers are widened for float fields")

	got, err = exec.Execute(ctx, CRUDOperation{
		Type:  schemata.OperationUpdate,
		Model: todo,
		Row:   schemata.Row{"id": schemata.IntegerValue(1), "done": schemata.BooleanValue(true)},
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = exec.Execute(ctx, CRUDOperation{Type: schemata.OperationDelete, Model: todo, IDs: []int64{1, 2}}, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestCRUDExecutorErrors(t *testing.T) {
	ctx := context.Background()
	def := mustParse(t, todoApp)
	store := openSyncedStore(t, schemata.DialectSQLite, def)
	exec := newCRUDExecutor(store, newValidatorSet())
	todo := mustModel(t, def, "Todo")

	tests := []struct {
		name    string
		op      CRUDOperation
		errType schemata.ErrorType
	}{
		{
			name:    "create without required field",
			op:      CRUDOperation{Type: schemata.OperationCreate, Model: todo, Row: schemata.Row{"done": schemata.BooleanValue(true)}},
			errType: schemata.ErrorTypeMissingField,
		},
		{
			name:    "create with wrong type",
			op:      CRUDOperation{Type: schemata.OperationCreate, Model: todo, Row: schemata.Row{"title": schemata.IntegerValue(3)}},
			errType: schemata.ErrorTypeValidation,
		},
		{
			name:    "update without id",
			op:      CRUDOperation{Type: schemata.OperationUpdate, Model: todo, Row: schemata.Row{"title": schemata.StringValue("x")}},
			errType: schemata.ErrorTypeMissingField,
		},
		{
			name:    "update with undeclared field",
			op:      CRUDOperation{Type: schemata.OperationUpdate, Model: todo, Row: schemata.Row{"id": schemata.IntegerValue(1), "color": schemata.StringValue("red")}},
			errType: schemata.ErrorTypeValidation,
		},
		{
			name:    "create with out of range datetime",
			op:      CRUDOperation{Type: schemata.OperationCreate, Model: todo, Row: schemata.Row{"title": schemata.StringValue("x"), "due": schemata.FloatValue(1e19)}},
			errType: schemata.ErrorTypeValidation,
		},
		{
			name:    "update with wrong type",
			op:      CRUDOperation{Type: schemata.OperationUpdate, Model: todo, Row: schemata.Row{"id": schemata.IntegerValue(1), "done": schemata.StringValue("yes")}},
			errType: schemata.ErrorTypeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Execute(ctx, tt.op, schemata.User(1))
			require.Error(t, err)
			assert.True(t, schemata.IsType(err, tt.errType), "got %v", err)
		})
	}

	rows, err := store.Select(ctx, todo, schemata.Administrator(), nil)
	require.NoError(t, err)
	assert.Empty(t, rows, "rejected operations write nothing")
}

func TestParseDeleteIDs(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []int64
		errType schemata.ErrorType
	}{
		{name: "single id", body: `{"id": 3}`, want: []int64{3}},
		{name: "pks", body: `{"pks": [1, 2, 2]}`, want: []int64{1, 2}},
		{name: "id and pks merged", body: `{"id": 2, "pks": [1, 2]}`, want: []int64{2, 1}},
		{name: "empty pks", body: `{"pks": []}`, want: []int64{}},
		{name: "neither key", body: `{}`, errType: schemata.ErrorTypeMissingField},
		{name: "empty body", body: ``, errType: schemata.ErrorTypeMissingField},
		{name: "invalid json", body: `{"pks": "all"}`, errType: schemata.ErrorTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := ParseDeleteIDs("Todo", []byte(tt.body))
			if tt.errType != "" {
				require.Error(t, err)
				assert.True(t, schemata.IsType(err, tt.errType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestRowValidator(t *testing.T) {
	def := mustParse(t, todoApp)
	v, err := newRowValidator(mustModel(t, def, "Todo"))
	require.NoError(t, err)

	assert.NoError(t, v.ValidateCreate(schemata.Row{"title": schemata.StringValue("a"), "due": schemata.DateTimeValue(5)}))
	assert.NoError(t, v.ValidateCreate(schemata.Row{"title": schemata.StringValue("a"), "extra": schemata.StringValue("ignored")}),
		"create ignores undeclared names")
	assert.NoError(t, v.ValidateCreate(schemata.Row{}), "presence is checked by the store")
	assert.NoError(t, v.ValidateCreate(schemata.Row{"weight": schemata.IntegerValue(3)}), "integers are numbers")
	assert.Error(t, v.ValidateCreate(schemata.Row{"due": schemata.FloatValue(1.5)}))
	assert.Error(t, v.ValidateCreate(schemata.Row{"done": schemata.IntegerValue(1)}))

	assert.NoError(t, v.ValidateUpdate(schemata.Row{"id": schemata.IntegerValue(1), "weight": schemata.NullValue()}))
	assert.Error(t, v.ValidateUpdate(schemata.Row{"id": schemata.IntegerValue(1), "title": schemata.NullValue()}))
	assert.Error(t, v.ValidateUpdate(schemata.Row{"id": schemata.IntegerValue(1), "color": schemata.StringValue("red")}))

	err = v.ValidateCreate(schemata.Row{"title": schemata.BooleanValue(true)})
	var e *schemata.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, schemata.ErrorTypeValidation, e.Type)
	assert.Equal(t, "Todo", e.Model)
}

func TestValidatorSetCachesPerModel(t *testing.T) {
	def := mustParse(t, todoApp)
	set := newValidatorSet()
	todo := mustModel(t, def, "Todo")

	first, err := set.get(todo)
	require.NoError(t, err)
	second, err := set.get(todo)
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := set.get(mustModel(t, def, "Note"))
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestCRUDExecutorRejectsLossyIntegers(t *testing.T) {
	ctx := context.Background()
	def := mustParse(t, todoApp)
	store := openSyncedStore(t, schemata.DialectSQLite, def)
	exec := newCRUDExecutor(store, newValidatorSet())
	note := mustModel(t, def, "Note")

	for _, body := range []string{`{"body": "big", "stars": 1e19}`, `{"body": "tiny", "stars": -1e300}`, `{"body": "half", "stars": 1.5}`} {
		row, err := schemata.RowFromJSON([]byte(body))
		require.NoError(t, err)
		_, err = exec.Execute(ctx, CRUDOperation{Type: schemata.OperationCreate, Model: note, Row: row}, schemata.Administrator())
		assert.True(t, schemata.IsType(err, schemata.ErrorTypeValidation), "%s: got %v", body, err)
	}

	row, err := schemata.RowFromJSON([]byte(`{"body": "exact", "stars": 4.0}`))
	require.NoError(t, err)
	_, err = exec.Execute(ctx, CRUDOperation{Type: schemata.OperationCreate, Model: note, Row: row}, schemata.Administrator())
	require.NoError(t, err)

	rows, err := store.Select(ctx, note, schemata.Administrator(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, schemata.IntegerValue(4).Equal(rows[0]["stars"]), "got %s", rows[0]["stars"])
}
