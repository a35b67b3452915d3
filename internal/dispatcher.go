package internal

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"path"
	"strconv"

	"github.com/lychee-technology/schemata"
	"go.uber.org/zap"
)

// Paths served by the engine itself before endpoint lookup.
const (
	pathStatus    = "/__status"
	pathStats     = "/__stats"
	pathAuthUser  = "/auth/user"
	pathAuthLogin = "/auth/login"
)

const (
	contentTypeJSON = "application/json"
	contentTypeText = "text/plain; charset=utf-8"
)

// appTarget is everything the dispatcher needs about one application.
type appTarget struct {
	handle     string
	adminToken string
	dbPath     string
	definition *loadedDefinition
}

// Dispatcher runs one request against one application: it authenticates
// the caller, resolves the endpoint, checks access and executes.
type Dispatcher struct {
	stats   *Stats
	static  schemata.StaticStore
	opts    StoreOptions
	graphql GraphQLExecutor
}

func NewDispatcher(stats *Stats, static schemata.StaticStore, opts StoreOptions) *Dispatcher {
	if stats == nil {
		stats = NewStats()
	}
	return &Dispatcher{stats: stats, static: static, opts: opts}
}

// lazyStore opens the application's storage on first use so requests that
// never touch rows never take the file lock.
type lazyStore struct {
	path  string
	opts  StoreOptions
	store *Store
}

func (l *lazyStore) get(ctx context.Context) (*Store, error) {
	if l.store != nil {
		return l.store, nil
	}
	s, err := OpenStore(ctx, l.path, l.opts)
	if err != nil {
		return nil, err
	}
	l.store = s
	return s, nil
}

func (l *lazyStore) Select(ctx context.Context, model *schemata.ModelDefinition, actor schemata.Actor, id *int64) ([]schemata.Row, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Select(ctx, model, actor, id)
}

func (l *lazyStore) close() {
	if l.store == nil {
		return
	}
	if err := l.store.Close(); err != nil {
		zap.S().Warnw("failed to close store", "path", l.path, "error", err)
	}
	l.store = nil
}

// Handle serves req. At most one storage handle is opened and it is closed
// before Handle returns.
func (d *Dispatcher) Handle(ctx context.Context, app appTarget, req *schemata.Request) (*schemata.Response, error) {
	store := &lazyStore{path: app.dbPath, opts: d.opts}
	defer store.close()

	actor, err := authenticate(ctx, req.Authorization, app.adminToken, func(ctx context.Context) (tokenFinder, error) {
		return store.get(ctx)
	})
	if err != nil {
		return nil, err
	}

	switch req.Path {
	case pathStatus:
		return jsonResponse(map[string]any{"status": "ok", "app": app.handle})
	case pathStats:
		if !actor.IsAdministrator() {
			return nil, schemata.NewPermissionError("stats require the admin token")
		}
		return jsonResponse(d.stats.Snapshot("api." + app.handle + "."))
	case pathAuthUser:
		return d.handleUsers(ctx, store, req, actor)
	case pathAuthLogin:
		return d.handleLogin(ctx, store, req)
	}

	def := app.definition.def
	endpoint, ok := def.FindEndpoint(req.Path)
	if !ok {
		return nil, schemata.NewNotFoundError("endpoint", req.Path)
	}
	if !def.CheckAccess(endpoint, req.Method, actor) {
		zap.S().Infow("access denied", "app", app.handle, "endpoint", endpoint.Name, "method", req.Method, "actor", actor.String())
		return nil, schemata.NewPermissionError("access to " + endpoint.Name + " denied")
	}
	d.stats.Account(app.handle, endpoint.Name, req.Method.Upper())

	switch endpoint.Kind {
	case schemata.EndpointString:
		return &schemata.Response{ContentType: contentTypeText, Body: []byte(endpoint.Response)}, nil
	case schemata.EndpointStaticFile:
		return d.serveStatic(ctx, app.handle, endpoint)
	case schemata.EndpointModel:
		return d.serveModel(ctx, app.definition, store, endpoint, req, actor)
	case schemata.EndpointGraphQL:
		return d.serveGraphQL(ctx, def, store, endpoint, req, actor)
	}
	return nil, schemata.NewNotFoundError("endpoint", req.Path)
}

func (d *Dispatcher) serveStatic(ctx context.Context, handle string, endpoint *schemata.Endpoint) (*schemata.Response, error) {
	if d.static == nil {
		return nil, schemata.NewNotFoundError("file", endpoint.LocalFile)
	}
	rc, err := d.static.Open(ctx, handle, endpoint.LocalFile)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, schemata.NewStorageError("read static file", err)
	}
	ct := mime.TypeByExtension(path.Ext(endpoint.LocalFile))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &schemata.Response{ContentType: ct, Body: body}, nil
}

func (d *Dispatcher) serveModel(ctx context.Context, ld *loadedDefinition, store *lazyStore, endpoint *schemata.Endpoint, req *schemata.Request, actor schemata.Actor) (*schemata.Response, error) {
	model, ok := ld.def.GetModel(endpoint.Model)
	if !ok {
		return nil, schemata.NewNotFoundError("model", endpoint.Model)
	}

	op := CRUDOperation{Model: model}
	switch req.Method {
	case schemata.MethodGet:
		op.Type = schemata.OperationList
		if raw := req.Query.Get("id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, schemata.NewValidationError(schemata.ColumnID, "id must be an integer").WithModel(model.Name)
			}
			op.Type = schemata.OperationGet
			op.ID = id
		}
	case schemata.MethodPost, schemata.MethodPut:
		row, err := schemata.RowFromJSON(req.Body)
		if err != nil {
			return nil, err
		}
		op.Type = schemata.OperationCreate
		if req.Method == schemata.MethodPut {
			op.Type = schemata.OperationUpdate
		}
		op.Row = row
	case schemata.MethodDelete:
		ids, err := ParseDeleteIDs(model.Name, req.Body)
		if err != nil {
			return nil, err
		}
		op.Type = schemata.OperationDelete
		op.IDs = ids
	default:
		return nil, schemata.NewUnsupportedMethodError(req.Method, endpoint.Name)
	}

	s, err := store.get(ctx)
	if err != nil {
		return nil, err
	}
	result, err := newCRUDExecutor(s, ld.validators).Execute(ctx, op, actor)
	if err != nil {
		return nil, err
	}
	return jsonResponse(result)
}

func (d *Dispatcher) serveGraphQL(ctx context.Context, def *schemata.ApplicationDefinition, store *lazyStore, endpoint *schemata.Endpoint, req *schemata.Request, actor schemata.Actor) (*schemata.Response, error) {
	switch req.Method {
	case schemata.MethodGet:
	case schemata.MethodPost:
		return nil, schemata.NewUnsupportedQueryError("POST query documents")
	default:
		return nil, schemata.NewUnsupportedMethodError(req.Method, endpoint.Name)
	}
	if !req.Query.Has("query") {
		return nil, schemata.NewMissingFieldError(endpoint.Name, "query")
	}
	body, err := d.graphql.Execute(ctx, def, store, actor, req.Query.Get("query"))
	if err != nil {
		return nil, err
	}
	return &schemata.Response{ContentType: contentTypeJSON, Body: body}, nil
}

type newUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type tokenResponse struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

// handleUsers manages the application's own users. Only the admin token
// may call it.
func (d *Dispatcher) handleUsers(ctx context.Context, store *lazyStore, req *schemata.Request, actor schemata.Actor) (*schemata.Response, error) {
	if !actor.IsAdministrator() {
		return nil, schemata.NewPermissionError("user management requires the admin token")
	}
	users := schemata.SystemUserModel()

	switch req.Method {
	case schemata.MethodGet:
		s, err := store.get(ctx)
		if err != nil {
			return nil, err
		}
		rows, err := s.Select(ctx, users, actor, nil)
		if err != nil {
			return nil, err
		}
		out := make([]userSummary, 0, len(rows))
		for _, r := range rows {
			id, _ := r.ID()
			name, _ := r["name"].Str()
			email, _ := r["email"].Str()
			out = append(out, userSummary{ID: id, Name: name, Email: email})
		}
		return jsonResponse(out)

	case schemata.MethodPost:
		var body newUserRequest
		if err := json.Unmarshal(req.Body, &body); err != nil {
			e := schemata.NewValidationError("", "invalid user body: "+err.Error())
			e.Code = schemata.ErrCodeInvalidJSON
			return nil, e
		}
		for _, f := range []struct{ name, value string }{
			{"name", body.Name}, {"email", body.Email}, {"password", body.Password},
		} {
			if f.value == "" {
				return nil, schemata.NewMissingFieldError(users.Name, f.name)
			}
		}
		hash, err := HashPassword(body.Password)
		if err != nil {
			return nil, schemata.NewStorageError("hash password", err)
		}
		token := NewToken()
		s, err := store.get(ctx)
		if err != nil {
			return nil, err
		}
		id, err := s.Create(ctx, users, schemata.Row{
			"name":     schemata.StringValue(body.Name),
			"email":    schemata.StringValue(body.Email),
			"password": schemata.StringValue(hash),
			"token":    schemata.StringValue(token),
		}, actor)
		if err != nil {
			return nil, err
		}
		zap.S().Infow("application user created", "id", id, "name", body.Name)
		return jsonResponse(tokenResponse{ID: id, Token: token})
	}
	return nil, schemata.NewUnsupportedMethodError(req.Method, pathAuthUser)
}

// handleLogin exchanges a name and password for the user's token.
func (d *Dispatcher) handleLogin(ctx context.Context, store *lazyStore, req *schemata.Request) (*schemata.Response, error) {
	if req.Method != schemata.MethodPost {
		return nil, schemata.NewUnsupportedMethodError(req.Method, pathAuthLogin)
	}
	var body newUserRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		e := schemata.NewValidationError("", "invalid login body: "+err.Error())
		e.Code = schemata.ErrCodeInvalidJSON
		return nil, e
	}
	s, err := store.get(ctx)
	if err != nil {
		return nil, err
	}
	row, found, err := s.FindBy(ctx, schemata.SystemUserModel(), "name", schemata.StringValue(body.Name))
	if err != nil {
		return nil, err
	}
	hash, _ := row["password"].Str()
	if !found || !VerifyPassword(body.Password, hash) {
		return nil, schemata.NewPermissionError("invalid name or password")
	}
	id, _ := row.ID()
	token, _ := row["token"].Str()
	return jsonResponse(tokenResponse{ID: id, Token: token})
}

func jsonResponse(v any) (*schemata.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, schemata.NewStorageError("encode response", err)
	}
	return &schemata.Response{ContentType: contentTypeJSON, Body: body}, nil
}
