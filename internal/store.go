package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lychee-technology/schemata"
	"go.uber.org/zap"
)

// StoreOptions configures how an application's storage file is opened.
type StoreOptions struct {
	Dialect          schemata.DialectName
	LockTimeout      time.Duration
	LockPollInterval time.Duration
}

// StoreOptionsFromConfig maps the storage section of the engine config.
func StoreOptionsFromConfig(c schemata.StorageConfig) StoreOptions {
	return StoreOptions{
		Dialect:          c.Dialect,
		LockTimeout:      c.LockTimeout,
		LockPollInterval: c.LockPollInterval,
	}
}

// Store is a handle on one application's storage file. The file lock is
// held from OpenStore until Close.
type Store struct {
	db      *sql.DB
	dialect dialect
	lock    *fileLock
	path    string
	clock   func() time.Time
}

// OpenStore acquires the exclusive lock on path and opens the database.
func OpenStore(ctx context.Context, path string, opts StoreOptions) (*Store, error) {
	d, err := dialectFor(opts.Dialect)
	if err != nil {
		return nil, schemata.NewError(schemata.ErrorTypeStorage, schemata.ErrCodeConnectionFailed, err.Error())
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 10 * time.Second
	}
	if opts.LockPollInterval <= 0 {
		opts.LockPollInterval = 20 * time.Millisecond
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, schemata.NewStorageError("create storage directory", err)
	}

	lock, err := acquireFileLock(ctx, path+".lock", opts.LockTimeout, opts.LockPollInterval)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.DriverName(), d.DSN(path))
	if err != nil {
		lock.release()
		e := schemata.NewStorageError("open storage", err)
		e.Code = schemata.ErrCodeConnectionFailed
		return nil, e
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		lock.release()
		e := schemata.NewStorageError("ping storage", err)
		e.Code = schemata.ErrCodeConnectionFailed
		return nil, e
	}

	return &Store{db: db, dialect: d, lock: lock, path: path, clock: time.Now}, nil
}

// Close closes the database and releases the lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var dbErr error
	if s.db != nil {
		dbErr = s.db.Close()
		s.db = nil
	}
	lockErr := s.lock.release()
	s.lock = nil
	return errors.Join(dbErr, lockErr)
}

// Path is the storage file this handle is bound to.
func (s *Store) Path() string { return s.path }

// Tables lists the tables present in the storage file.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, s.dialect.ListTables())
}

// Columns lists the columns of table in declaration order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	return s.queryStrings(ctx, s.dialect.ListColumns(), table)
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schemata.NewStorageError("introspect storage", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, schemata.NewStorageError("introspect storage", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, schemata.NewStorageError("introspect storage", err)
	}
	return out, nil
}

// CreateTable emits the DDL for a model.
func (s *Store) CreateTable(ctx context.Context, model *schemata.ModelDefinition) error {
	for _, stmt := range s.dialect.CreateTable(model) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return schemata.NewStorageError("create table", err).WithModel(model.Name)
		}
	}
	zap.S().Infow("created table", "model", model.Name, "fields", len(model.Fields), "dialect", s.dialect.Name())
	return nil
}

// visibility returns the row-level predicate for actor on model, or an
// empty clause when every row is visible.
func visibility(model *schemata.ModelDefinition, actor schemata.Actor) (string, []any) {
	if model.Visibility != schemata.VisibilityOwner || actor.IsAdministrator() {
		return "", nil
	}
	return quoteIdent(schemata.ColumnOwner) + " = ?", []any{actor.OwnerID()}
}

// Create inserts a row and returns its id. Absent datetime fields with
// default_now get the current time; other absent required fields fail.
func (s *Store) Create(ctx context.Context, model *schemata.ModelDefinition, row schemata.Row, actor schemata.Actor) (int64, error) {
	cols := []string{schemata.ColumnOwner}
	args := []any{actor.OwnerID()}
	now := s.clock().Unix()

	for i := range model.Fields {
		f := &model.Fields[i]
		v, ok := row[f.Name]
		if !ok || v.IsNull() {
			switch {
			case f.HasDefault():
				v = schemata.DateTimeValue(now)
			case f.Optional:
				continue
			default:
				return 0, schemata.NewMissingFieldError(model.Name, f.Name)
			}
		}
		cv, err := v.Coerce(f.Type)
		if err != nil {
			return 0, schemata.NewValidationError(f.Name, err.Error()).WithModel(model.Name)
		}
		cols = append(cols, f.Name)
		args = append(args, s.dialect.Bind(cv))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteIdent(model.Name), quoteIdents(cols), placeholders(len(cols)), quoteIdent(schemata.ColumnID))

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, schemata.NewStorageError("insert row", err).WithModel(model.Name)
	}
	zap.S().Debugw("row created", "model", model.Name, "id", id, "actor", actor.String())
	return id, nil
}

// Update writes every present declared field of row to the visible row
// with row's id and returns the number of rows changed.
func (s *Store) Update(ctx context.Context, model *schemata.ModelDefinition, row schemata.Row, actor schemata.Actor) (int64, error) {
	id, ok := row.ID()
	if !ok {
		return 0, schemata.NewMissingFieldError(model.Name, schemata.ColumnID)
	}

	sets := []string{quoteIdent(schemata.ColumnUpdateTime) + " = " + s.dialect.Now()}
	var args []any
	for _, name := range row.Names() {
		if name == schemata.ColumnID {
			continue
		}
		f, ok := model.Field(name)
		if !ok {
			e := schemata.NewValidationError(name, "field is not declared on the model").WithModel(model.Name)
			e.Code = schemata.ErrCodeUnknownField
			return 0, e
		}
		v := row[name]
		if v.IsNull() && !f.Optional {
			return 0, schemata.NewValidationError(name, "required field cannot be null").WithModel(model.Name)
		}
		cv, err := v.Coerce(f.Type)
		if err != nil {
			return 0, schemata.NewValidationError(name, err.Error()).WithModel(model.Name)
		}
		sets = append(sets, quoteIdent(name)+" = ?")
		args = append(args, s.dialect.Bind(cv))
	}

	where := quoteIdent(schemata.ColumnID) + " = ?"
	args = append(args, id)
	if clause, vargs := visibility(model, actor); clause != "" {
		where += " AND " + clause
		args = append(args, vargs...)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quoteIdent(model.Name), strings.Join(sets, ", "), where)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, schemata.NewStorageError("update row", err).WithModel(model.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, schemata.NewStorageError("update row", err).WithModel(model.Name)
	}
	if n == 0 {
		zap.S().Debugw("update matched no visible row", "model", model.Name, "id", id, "actor", actor.String())
	}
	return n, nil
}

// Delete removes the visible rows among ids and returns how many were
// removed.
func (s *Store) Delete(ctx context.Context, model *schemata.ModelDefinition, ids []int64, actor schemata.Actor) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	where := fmt.Sprintf("%s IN (%s)", quoteIdent(schemata.ColumnID), placeholders(len(ids)))
	if clause, vargs := visibility(model, actor); clause != "" {
		where += " AND " + clause
		args = append(args, vargs...)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(model.Name), where), args...)
	if err != nil {
		return 0, schemata.NewStorageError("delete rows", err).WithModel(model.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, schemata.NewStorageError("delete rows", err).WithModel(model.Name)
	}
	zap.S().Debugw("rows deleted", "model", model.Name, "requested", len(ids), "deleted", n, "actor", actor.String())
	return n, nil
}

// Select returns the visible rows of model ordered by id, optionally
// restricted to one id. Each row carries id and every declared field.
func (s *Store) Select(ctx context.Context, model *schemata.ModelDefinition, actor schemata.Actor, id *int64) ([]schemata.Row, error) {
	var conds []string
	var args []any
	if id != nil {
		conds = append(conds, quoteIdent(schemata.ColumnID)+" = ?")
		args = append(args, *id)
	}
	if clause, vargs := visibility(model, actor); clause != "" {
		conds = append(conds, clause)
		args = append(args, vargs...)
	}
	return s.selectWhere(ctx, model, conds, args, "")
}

// FindBy returns the first row whose field equals value, ignoring
// visibility. It backs token authentication.
func (s *Store) FindBy(ctx context.Context, model *schemata.ModelDefinition, field string, value schemata.Value) (schemata.Row, bool, error) {
	if _, ok := model.Field(field); !ok && field != schemata.ColumnID {
		return nil, false, schemata.NewNotFoundError("field", field).WithModel(model.Name)
	}
	rows, err := s.selectWhere(ctx, model, []string{quoteIdent(field) + " = ?"}, []any{s.dialect.Bind(value)}, " LIMIT 1")
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (s *Store) selectWhere(ctx context.Context, model *schemata.ModelDefinition, conds []string, args []any, suffix string) ([]schemata.Row, error) {
	names := append([]string{schemata.ColumnID}, model.FieldNames()...)
	query := fmt.Sprintf("SELECT %s FROM %s", quoteIdents(names), quoteIdent(model.Name))
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + quoteIdent(schemata.ColumnID) + suffix

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schemata.NewStorageError("select rows", err).WithModel(model.Name)
	}
	defer rows.Close()

	types := make([]schemata.FieldType, len(names))
	types[0] = schemata.FieldInteger
	for i := range model.Fields {
		types[i+1] = model.Fields[i].Type
	}

	var out []schemata.Row
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, schemata.NewStorageError("scan row", err).WithModel(model.Name)
		}
		row := make(schemata.Row, len(names))
		for i, name := range names {
			v, err := decodeColumn(types[i], raw[i])
			if err != nil {
				return nil, schemata.NewStorageError("decode column", err).WithModel(model.Name).WithField(name)
			}
			row[name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, schemata.NewStorageError("select rows", err).WithModel(model.Name)
	}
	return out, nil
}

// decodeColumn maps a driver value to a Value of the field's declared kind.
// NULL maps to Null whatever the declared type.
func decodeColumn(t schemata.FieldType, raw any) (schemata.Value, error) {
	var v schemata.Value
	switch x := raw.(type) {
	case nil:
		return schemata.NullValue(), nil
	case int64:
		v = schemata.IntegerValue(x)
	case int32:
		v = schemata.IntegerValue(int64(x))
	case int16:
		v = schemata.IntegerValue(int64(x))
	case int8:
		v = schemata.IntegerValue(int64(x))
	case int:
		v = schemata.IntegerValue(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return v, fmt.Errorf("value %d overflows int64", x)
		}
		v = schemata.IntegerValue(int64(x))
	case uint32:
		v = schemata.IntegerValue(int64(x))
	case float64:
		v = schemata.FloatValue(x)
	case float32:
		v = schemata.FloatValue(float64(x))
	case bool:
		v = schemata.BooleanValue(x)
	case string:
		v = schemata.StringValue(x)
	case []byte:
		v = schemata.StringValue(string(x))
	case time.Time:
		v = schemata.DateTimeValue(x.Unix())
	default:
		return v, fmt.Errorf("unsupported driver value %T", raw)
	}
	return v.Coerce(t)
}
