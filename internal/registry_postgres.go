package internal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lychee-technology/schemata"
	"github.com/lychee-technology/schemata/internal/migrations"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// pgxIface is the subset of pgxpool.Pool the registry uses. pgxmock pools
// satisfy it in tests.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresRegistry keeps registry records in PostgreSQL.
type PostgresRegistry struct {
	pool pgxIface
}

func NewPostgresRegistry(pool pgxIface) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

// registryDSN renders a connection URL. When IAM auth is enabled the
// password is replaced by a DSQL connect token.
func registryDSN(ctx context.Context, cfg schemata.RegistryConfig) (string, error) {
	password := cfg.Password
	if cfg.UseIAMAuth {
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
		if err != nil {
			return "", fmt.Errorf("load aws config: %w", err)
		}
		endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
		if err != nil {
			return "", fmt.Errorf("generate dsql auth token: %w", err)
		}
		password = token
		zap.S().Infow("generated IAM auth token for registry connection", "host", cfg.Host)
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	if cfg.Timeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(cfg.Timeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// OpenPostgresRegistry connects a pool and brings the registry schema up
// to date.
func OpenPostgresRegistry(ctx context.Context, cfg schemata.RegistryConfig) (*PostgresRegistry, error) {
	dsn, err := registryDSN(ctx, cfg)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse registry dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect registry: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping registry: %w", err)
	}
	if err := MigrateRegistry(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresRegistry(pool), nil
}

// MigrateRegistry applies the embedded goose migrations.
func MigrateRegistry(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate registry: %w", err)
	}
	return nil
}

func registryError(kind, name string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return schemata.NewNotFoundError(kind, name)
	}
	return schemata.NewStorageError("registry "+kind+" query", err)
}

const userColumns = "id, username, email, created_at"

func scanUser(row pgx.Row) (*schemata.UserAccount, error) {
	var u schemata.UserAccount
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRegistry) GetUser(ctx context.Context, id int64) (*schemata.UserAccount, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM registry_users WHERE id = $1", id))
	if err != nil {
		return nil, registryError("user", strconv.FormatInt(id, 10), err)
	}
	return u, nil
}

func (r *PostgresRegistry) GetUserByName(ctx context.Context, username string) (*schemata.UserAccount, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM registry_users WHERE username = $1", username))
	if err != nil {
		return nil, registryError("user", username, err)
	}
	return u, nil
}

func (r *PostgresRegistry) CreateUser(ctx context.Context, user *schemata.UserAccount) error {
	err := r.pool.QueryRow(ctx,
		"INSERT INTO registry_users (username, email) VALUES ($1, $2) RETURNING id, created_at",
		user.Username, user.Email,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return schemata.NewStorageError("create registry user", err)
	}
	return nil
}

func (r *PostgresRegistry) UpdateUser(ctx context.Context, user *schemata.UserAccount) error {
	tag, err := r.pool.Exec(ctx, "UPDATE registry_users SET username = $1, email = $2 WHERE id = $3",
		user.Username, user.Email, user.ID)
	if err != nil {
		return schemata.NewStorageError("update registry user", err)
	}
	if tag.RowsAffected() == 0 {
		return schemata.NewNotFoundError("user", strconv.FormatInt(user.ID, 10))
	}
	return nil
}

func (r *PostgresRegistry) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM registry_users WHERE id = $1", id)
	if err != nil {
		return schemata.NewStorageError("delete registry user", err)
	}
	if tag.RowsAffected() == 0 {
		return schemata.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *PostgresRegistry) ListUsers(ctx context.Context) ([]schemata.UserAccount, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+userColumns+" FROM registry_users ORDER BY id")
	if err != nil {
		return nil, schemata.NewStorageError("list registry users", err)
	}
	defer rows.Close()

	var out []schemata.UserAccount
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, schemata.NewStorageError("scan registry user", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, schemata.NewStorageError("list registry users", err)
	}
	return out, nil
}

const appColumns = "id, owner_id, name, handle, admin_token, git_repo, git_ref, created_at"

func scanApp(row pgx.Row) (*schemata.AppRecord, error) {
	var a schemata.AppRecord
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Handle, &a.AdminToken, &a.GitRepo, &a.GitRef, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRegistry) GetApp(ctx context.Context, handle string) (*schemata.AppRecord, error) {
	a, err := scanApp(r.pool.QueryRow(ctx, "SELECT "+appColumns+" FROM registry_apps WHERE handle = $1", handle))
	if err != nil {
		return nil, registryError("app", handle, err)
	}
	return a, nil
}

func (r *PostgresRegistry) CreateApp(ctx context.Context, app *schemata.AppRecord) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO registry_apps (owner_id, name, handle, admin_token, git_repo, git_ref)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		app.OwnerID, app.Name, app.Handle, app.AdminToken, app.GitRepo, app.GitRef,
	).Scan(&app.ID, &app.CreatedAt)
	if err != nil {
		return schemata.NewStorageError("create registry app", err)
	}
	return nil
}

func (r *PostgresRegistry) UpdateApp(ctx context.Context, app *schemata.AppRecord) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE registry_apps SET name = $1, admin_token = $2, git_repo = $3, git_ref = $4 WHERE id = $5`,
		app.Name, app.AdminToken, app.GitRepo, app.GitRef, app.ID)
	if err != nil {
		return schemata.NewStorageError("update registry app", err)
	}
	if tag.RowsAffected() == 0 {
		return schemata.NewNotFoundError("app", app.Handle)
	}
	return nil
}

func (r *PostgresRegistry) DeleteApp(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM registry_apps WHERE id = $1", id)
	if err != nil {
		return schemata.NewStorageError("delete registry app", err)
	}
	if tag.RowsAffected() == 0 {
		return schemata.NewNotFoundError("app", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *PostgresRegistry) ListApps(ctx context.Context, ownerID int64) ([]schemata.AppRecord, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+appColumns+" FROM registry_apps WHERE owner_id = $1 ORDER BY id", ownerID)
	if err != nil {
		return nil, schemata.NewStorageError("list registry apps", err)
	}
	defer rows.Close()

	var out []schemata.AppRecord
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, schemata.NewStorageError("scan registry app", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, schemata.NewStorageError("list registry apps", err)
	}
	return out, nil
}

func (r *PostgresRegistry) AppendEvent(ctx context.Context, appID int64, content string) error {
	if _, err := r.pool.Exec(ctx, "INSERT INTO registry_app_events (app_id, content) VALUES ($1, $2)", appID, content); err != nil {
		return schemata.NewStorageError("append app event", err)
	}
	return nil
}

func (r *PostgresRegistry) ListEvents(ctx context.Context, appID int64) ([]schemata.AppEvent, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, app_id, content, created_at FROM registry_app_events WHERE app_id = $1 ORDER BY id", appID)
	if err != nil {
		return nil, schemata.NewStorageError("list app events", err)
	}
	defer rows.Close()

	var out []schemata.AppEvent
	for rows.Next() {
		var e schemata.AppEvent
		if err := rows.Scan(&e.ID, &e.AppID, &e.Content, &e.CreatedAt); err != nil {
			return nil, schemata.NewStorageError("scan app event", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, schemata.NewStorageError("list app events", err)
	}
	return out, nil
}

func (r *PostgresRegistry) Close() {
	r.pool.Close()
}

var _ schemata.Registry = (*PostgresRegistry)(nil)
