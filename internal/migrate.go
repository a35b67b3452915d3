package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/lychee-technology/schemata"
	"go.uber.org/zap"
)

// Migrate adds a column for every field of model the live table lacks.
// previous is the model the table was last synced with. Nothing is ever
// dropped or altered, so calling it twice is harmless. System models are
// left untouched.
func (s *Store) Migrate(ctx context.Context, model, previous *schemata.ModelDefinition) error {
	if model.IsSystem() {
		return nil
	}

	live, err := s.Columns(ctx, model.Name)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(live))
	for _, c := range live {
		existing[strings.ToLower(c)] = true
	}

	added := 0
	for i := range model.Fields {
		f := &model.Fields[i]
		if existing[strings.ToLower(f.Name)] {
			continue
		}
		if previous != nil {
			if _, ok := previous.Field(f.Name); ok {
				zap.S().Warnw("column missing for previously declared field, re-adding", "model", model.Name, "field", f.Name)
			}
		}
		if _, err := s.db.ExecContext(ctx, s.dialect.AddColumn(model.Name, f)); err != nil {
			return schemata.NewStorageError("add column", err).WithModel(model.Name).WithField(f.Name)
		}
		existing[strings.ToLower(f.Name)] = true
		added++
	}
	if added > 0 {
		zap.S().Infow("migrated table", "model", model.Name, "addedColumns", added)
	}
	return nil
}

// SyncModels brings the storage file in line with def. Missing tables
// are created and existing ones gain the columns they lack.
func (s *Store) SyncModels(ctx context.Context, def, previous *schemata.ApplicationDefinition) error {
	tables, err := s.Tables(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[strings.ToLower(t)] = true
	}

	for _, model := range def.StorageModels() {
		if !present[strings.ToLower(model.Name)] {
			if err := s.CreateTable(ctx, model); err != nil {
				return err
			}
			continue
		}
		var prev *schemata.ModelDefinition
		if previous != nil {
			prev, _ = previous.GetModel(model.Name)
		}
		if err := s.Migrate(ctx, model, prev); err != nil {
			return err
		}
	}
	return nil
}

// CheckMigration compares two definitions before any storage is touched.
// A field whose type changes cannot be migrated additively and fails.
// Removed fields and models, and fields that become required, are only
// logged since their columns stay in place.
func CheckMigration(previous, next *schemata.ApplicationDefinition) error {
	if previous == nil {
		return nil
	}
	for i := range previous.Models {
		old := &previous.Models[i]
		cur, ok := next.GetModel(old.Name)
		if !ok {
			if renamed, found := foldedModel(next, old.Name); found {
				return caseRenameError(old.Name, "", renamed)
			}
			zap.S().Warnw("model removed from definition, table is kept", "model", old.Name)
			continue
		}
		if old.Visibility != cur.Visibility {
			zap.S().Warnw("model visibility changed", "model", old.Name, "from", old.Visibility, "to", cur.Visibility)
		}
		for j := range old.Fields {
			of := &old.Fields[j]
			nf, ok := cur.Field(of.Name)
			if !ok {
				if renamed, found := foldedField(cur, of.Name); found {
					return caseRenameError(old.Name, of.Name, renamed)
				}
				zap.S().Warnw("field removed from definition, column is kept", "model", old.Name, "field", of.Name)
				continue
			}
			if nf.Type != of.Type || nf.Target != of.Target {
				e := schemata.NewValidationError(of.Name,
					fmt.Sprintf("type changes from %s to %s", describeType(of), describeType(nf))).WithModel(old.Name)
				e.Code = schemata.ErrCodeMigrationAmbiguous
				return e
			}
			if of.Optional && !nf.Optional {
				zap.S().Warnw("field became required, existing rows keep their values", "model", old.Name, "field", of.Name)
			}
		}
	}
	return nil
}

// foldedModel finds a model whose name differs from name only in case.
// Such a model would share the existing table.
func foldedModel(def *schemata.ApplicationDefinition, name string) (string, bool) {
	for i := range def.Models {
		if strings.EqualFold(def.Models[i].Name, name) {
			return def.Models[i].Name, true
		}
	}
	return "", false
}

func foldedField(model *schemata.ModelDefinition, name string) (string, bool) {
	for i := range model.Fields {
		if strings.EqualFold(model.Fields[i].Name, name) {
			return model.Fields[i].Name, true
		}
	}
	return "", false
}

func caseRenameError(model, field, renamed string) error {
	from := model
	if field != "" {
		from = field
	}
	e := schemata.NewValidationError(field,
		fmt.Sprintf("%s is renamed to %s, which maps to the same storage", from, renamed)).WithModel(model)
	e.Code = schemata.ErrCodeMigrationAmbiguous
	return e
}

func describeType(f *schemata.FieldDefinition) string {
	if f.Target != "" {
		return string(f.Type) + "(" + f.Target + ")"
	}
	return string(f.Type)
}
