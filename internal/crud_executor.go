package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/lychee-technology/schemata"
	"go.uber.org/zap"
)

// CRUDOperation is one validated operation against a model.
type CRUDOperation struct {
	Type  schemata.OperationType
	Model *schemata.ModelDefinition
	ID    int64
	Row   schemata.Row
	IDs   []int64
}

// rowStore is the part of Store the executors need.
type rowStore interface {
	Create(ctx context.Context, model *schemata.ModelDefinition, row schemata.Row, actor schemata.Actor) (int64, error)
	Update(ctx context.Context, model *schemata.ModelDefinition, row schemata.Row, actor schemata.Actor) (int64, error)
	Delete(ctx context.Context, model *schemata.ModelDefinition, ids []int64, actor schemata.Actor) (int64, error)
	Select(ctx context.Context, model *schemata.ModelDefinition, actor schemata.Actor, id *int64) ([]schemata.Row, error)
}

// CRUDExecutor runs CRUD operations against a store on behalf of an actor.
type CRUDExecutor struct {
	store      rowStore
	validators *validatorSet
}

func newCRUDExecutor(store rowStore, validators *validatorSet) *CRUDExecutor {
	if validators == nil {
		validators = newValidatorSet()
	}
	return &CRUDExecutor{store: store, validators: validators}
}

// Execute returns a JSON-ready result: a row array for reads, 1 for
// create and update, and the removed count for delete.
func (e *CRUDExecutor) Execute(ctx context.Context, op CRUDOperation, actor schemata.Actor) (any, error) {
	switch op.Type {
	case schemata.OperationGet:
		id := op.ID
		rows, err := e.store.Select(ctx, op.Model, actor, &id)
		if err != nil {
			return nil, err
		}
		return nonNilRows(rows), nil

	case schemata.OperationList:
		rows, err := e.store.Select(ctx, op.Model, actor, nil)
		if err != nil {
			return nil, err
		}
		return nonNilRows(rows), nil

	case schemata.OperationCreate:
		v, err := e.validators.get(op.Model)
		if err != nil {
			return nil, err
		}
		if err := v.ValidateCreate(op.Row); err != nil {
			return nil, err
		}
		if _, err := e.store.Create(ctx, op.Model, op.Row, actor); err != nil {
			return nil, err
		}
		return 1, nil

	case schemata.OperationUpdate:
		v, err := e.validators.get(op.Model)
		if err != nil {
			return nil, err
		}
		if _, ok := op.Row.ID(); !ok {
			return nil, schemata.NewMissingFieldError(op.Model.Name, schemata.ColumnID)
		}
		if err := v.ValidateUpdate(op.Row); err != nil {
			return nil, err
		}
		if _, err := e.store.Update(ctx, op.Model, op.Row, actor); err != nil {
			return nil, err
		}
		return 1, nil

	case schemata.OperationDelete:
		return e.store.Delete(ctx, op.Model, op.IDs, actor)
	}
	return nil, fmt.Errorf("unsupported operation %q", op.Type)
}

func nonNilRows(rows []schemata.Row) []schemata.Row {
	if rows == nil {
		return []schemata.Row{}
	}
	return rows
}

type deleteBody struct {
	ID  *int64  `json:"id"`
	PKs []int64 `json:"pks"`
}

// ParseDeleteIDs reads a delete body of the form {"id": n, "pks": [...]}.
// Both keys are merged; a body with neither is a missing pks field.
func ParseDeleteIDs(model string, body []byte) ([]int64, error) {
	var b deleteBody
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &b); err != nil {
			e := schemata.NewValidationError("", "invalid delete body: "+err.Error()).WithModel(model)
			e.Code = schemata.ErrCodeInvalidJSON
			return nil, e
		}
	}
	if b.ID == nil && b.PKs == nil {
		return nil, schemata.NewMissingFieldError(model, "pks")
	}

	seen := make(map[int64]bool, len(b.PKs)+1)
	ids := make([]int64, 0, len(b.PKs)+1)
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if b.ID != nil {
		add(*b.ID)
	}
	for _, id := range b.PKs {
		add(id)
	}
	if len(ids) == 0 {
		zap.S().Debugw("delete with empty id set", "model", model)
	}
	return ids, nil
}
