package internal

import (
	"context"
	"fmt"
	"regexp"

	"github.com/lychee-technology/schemata"
	"go.uber.org/zap"
)

// handlePattern is an identifier that may also contain dashes.
var handlePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,127}$`)

// Host serves every application registered in the registry. It implements
// schemata.Engine.
type Host struct {
	registry    schemata.Registry
	definitions *DefinitionStore
	dispatcher  *Dispatcher
	layout      appLayout
	storeOpts   StoreOptions
}

func NewHost(registry schemata.Registry, definitions *DefinitionStore, dispatcher *Dispatcher, dataDir string, opts StoreOptions) *Host {
	return &Host{
		registry:    registry,
		definitions: definitions,
		dispatcher:  dispatcher,
		layout:      newAppLayout(dataDir),
		storeOpts:   opts,
	}
}

// Handle resolves the application and dispatches req to it.
func (h *Host) Handle(ctx context.Context, handle string, req *schemata.Request) (*schemata.Response, error) {
	app, err := h.registry.GetApp(ctx, handle)
	if err != nil {
		return nil, err
	}
	ld, err := h.definitions.Load(handle)
	if err != nil {
		return nil, err
	}
	return h.dispatcher.Handle(ctx, appTarget{
		handle:     handle,
		adminToken: app.AdminToken,
		dbPath:     h.layout.DatabasePath(handle),
		definition: ld,
	}, req)
}

// Sync installs a new definition: it is parsed and checked against the
// previous one before storage is migrated and the text is persisted.
func (h *Host) Sync(ctx context.Context, handle string, text []byte) (*schemata.ApplicationDefinition, error) {
	app, err := h.registry.GetApp(ctx, handle)
	if err != nil {
		return nil, err
	}
	def, err := schemata.ParseApplication(text)
	if err != nil {
		return nil, err
	}
	previous, err := h.definitions.Previous(handle)
	if err != nil {
		return nil, err
	}
	if err := CheckMigration(previous, def); err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, h.layout.DatabasePath(handle), h.storeOpts)
	if err != nil {
		return nil, err
	}
	syncErr := store.SyncModels(ctx, def, previous)
	if cerr := store.Close(); cerr != nil {
		zap.S().Warnw("failed to close store after sync", "handle", handle, "error", cerr)
	}
	if syncErr != nil {
		return nil, syncErr
	}

	if err := h.definitions.Save(handle, text); err != nil {
		return nil, err
	}
	h.definitions.Invalidate(handle)

	if err := h.registry.AppendEvent(ctx, app.ID, "sync "+def.Name); err != nil {
		zap.S().Warnw("failed to record sync event", "handle", handle, "error", err)
	}
	zap.S().Infow("application synced", "handle", handle, "name", def.Name, "models", len(def.Models), "endpoints", len(def.API.Endpoints))
	return def, nil
}

// Definition returns the current definition of handle.
func (h *Host) Definition(ctx context.Context, handle string) (*schemata.ApplicationDefinition, error) {
	if _, err := h.registry.GetApp(ctx, handle); err != nil {
		return nil, err
	}
	ld, err := h.definitions.Load(handle)
	if err != nil {
		return nil, err
	}
	return ld.def, nil
}

// CreateApp registers an application named name for the platform user
// owner. The handle is <owner>-<name> and a fresh admin token is issued.
func (h *Host) CreateApp(ctx context.Context, owner, name string) (*schemata.AppRecord, error) {
	user, err := h.registry.GetUserByName(ctx, owner)
	if err != nil {
		return nil, err
	}
	handle := fmt.Sprintf("%s-%s", owner, name)
	if !handlePattern.MatchString(handle) {
		return nil, schemata.NewValidationError("handle", fmt.Sprintf("%q is not a valid application handle", handle))
	}
	app := &schemata.AppRecord{
		OwnerID:    user.ID,
		Name:       name,
		Handle:     handle,
		AdminToken: NewToken(),
	}
	if err := h.registry.CreateApp(ctx, app); err != nil {
		return nil, err
	}
	if err := h.registry.AppendEvent(ctx, app.ID, "create "+name); err != nil {
		zap.S().Warnw("failed to record create event", "handle", handle, "error", err)
	}
	return app, nil
}

// Export copies the rows of one model into a DuckDB file at out.
func (h *Host) Export(ctx context.Context, handle, modelName, out string) (int, error) {
	ld, err := h.definitions.Load(handle)
	if err != nil {
		return 0, err
	}
	model, ok := ld.def.GetModel(modelName)
	if !ok {
		return 0, schemata.NewNotFoundError("model", modelName)
	}

	src, err := OpenStore(ctx, h.layout.DatabasePath(handle), h.storeOpts)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	rows, err := src.Select(ctx, model, schemata.Administrator(), nil)
	if err != nil {
		return 0, err
	}

	dstOpts := h.storeOpts
	dstOpts.Dialect = schemata.DialectDuckDB
	dst, err := OpenStore(ctx, out, dstOpts)
	if err != nil {
		return 0, err
	}
	defer dst.Close()
	if err := dst.CreateTable(ctx, model); err != nil {
		return 0, err
	}
	if err := dst.Migrate(ctx, model, nil); err != nil {
		return 0, err
	}
	for _, row := range rows {
		if _, err := dst.Create(ctx, model, withoutID(row), schemata.Administrator()); err != nil {
			return 0, err
		}
	}
	zap.S().Infow("exported model", "handle", handle, "model", modelName, "rows", len(rows), "out", out)
	return len(rows), nil
}

func withoutID(row schemata.Row) schemata.Row {
	out := make(schemata.Row, len(row))
	for k, v := range row {
		if k != schemata.ColumnID {
			out[k] = v
		}
	}
	return out
}

var _ schemata.Engine = (*Host)(nil)
