package schemata

import (
	"context"
	"io"
)

// Engine serves requests for hosted applications.
type Engine interface {
	// Handle runs one request against the application identified by handle.
	Handle(ctx context.Context, handle string, req *Request) (*Response, error)

	// Sync replaces the application's definition and migrates its storage.
	Sync(ctx context.Context, handle string, definition []byte) (*ApplicationDefinition, error)

	// Definition returns the current definition of an application.
	Definition(ctx context.Context, handle string) (*ApplicationDefinition, error)
}

// Registry is the record store for platform users, applications and the
// per-application event log. ListEvents returns events in insertion order.
type Registry interface {
	GetUser(ctx context.Context, id int64) (*UserAccount, error)
	GetUserByName(ctx context.Context, username string) (*UserAccount, error)
	CreateUser(ctx context.Context, user *UserAccount) error
	UpdateUser(ctx context.Context, user *UserAccount) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]UserAccount, error)

	GetApp(ctx context.Context, handle string) (*AppRecord, error)
	CreateApp(ctx context.Context, app *AppRecord) error
	UpdateApp(ctx context.Context, app *AppRecord) error
	DeleteApp(ctx context.Context, id int64) error
	ListApps(ctx context.Context, ownerID int64) ([]AppRecord, error)

	AppendEvent(ctx context.Context, appID int64, content string) error
	ListEvents(ctx context.Context, appID int64) ([]AppEvent, error)

	Close()
}

// StaticStore serves the files behind static file endpoints.
type StaticStore interface {
	// Open returns the content of localfile for the application. Missing
	// files yield a not_found Error.
	Open(ctx context.Context, handle, localfile string) (io.ReadCloser, error)

	// Put stores content under localfile for the application.
	Put(ctx context.Context, handle, localfile string, content io.Reader) error
}
