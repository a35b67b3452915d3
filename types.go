package schemata

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Method is a request method as named in access rules (lowercase).
type Method string

const (
	MethodGet    Method = "get"
	MethodPost   Method = "post"
	MethodPut    Method = "put"
	MethodDelete Method = "delete"
	MethodPatch  Method = "patch"
)

// ParseMethod accepts the lowercase rule spelling or an HTTP verb.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(s)); m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
		return m, nil
	}
	return "", fmt.Errorf("unknown method %q", s)
}

// Upper returns the HTTP spelling of the method.
func (m Method) Upper() string {
	return strings.ToUpper(string(m))
}

// ActorKind distinguishes the three caller identities.
type ActorKind int

const (
	ActorAnonymous ActorKind = iota
	ActorUser
	ActorAdministrator
)

// AdministratorID is the identity value of the administrator.
const AdministratorID int64 = 0

// NoOwner is stored in the owner column for rows created anonymously.
const NoOwner int64 = -1

// Actor is the identity a request acts as.
type Actor struct {
	kind ActorKind
	id   int64
}

// Anonymous returns the identity of an unauthenticated caller.
func Anonymous() Actor { return Actor{kind: ActorAnonymous, id: NoOwner} }

// Administrator returns the distinguished identity that bypasses access
// rules and row visibility.
func Administrator() Actor { return Actor{kind: ActorAdministrator, id: AdministratorID} }

// User returns the identity of a system user record. Non-positive ids are
// not user identities and yield Anonymous.
func User(id int64) Actor {
	if id <= 0 {
		return Anonymous()
	}
	return Actor{kind: ActorUser, id: id}
}

func (a Actor) Kind() ActorKind { return a.kind }

func (a Actor) IsAnonymous() bool { return a.kind == ActorAnonymous }

func (a Actor) IsAdministrator() bool { return a.kind == ActorAdministrator }

// OwnerID is the value written to and matched against the owner column.
func (a Actor) OwnerID() int64 { return a.id }

func (a Actor) String() string {
	switch a.kind {
	case ActorAdministrator:
		return "admin"
	case ActorUser:
		return fmt.Sprintf("user:%d", a.id)
	default:
		return "anonymous"
	}
}

// OperationType represents CRUD operations
type OperationType string

const (
	OperationGet    OperationType = "get"
	OperationList   OperationType = "list"
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// Request is what the routing layer forwards to an application.
type Request struct {
	Method        Method
	Path          string
	Query         url.Values
	Body          []byte
	Authorization string
}

// Response is the rendered result of a request.
type Response struct {
	ContentType string
	Body        []byte
}

// UserAccount is a registry record for a platform user.
type UserAccount struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppRecord is a registry record for a hosted application.
type AppRecord struct {
	ID         int64     `json:"id"`
	OwnerID    int64     `json:"ownerId"`
	Name       string    `json:"name"`
	Handle     string    `json:"handle"`
	AdminToken string    `json:"adminToken"`
	GitRepo    string    `json:"gitRepo,omitempty"`
	GitRef     string    `json:"gitRef,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AppEvent is one entry of an application's append-only event log.
type AppEvent struct {
	ID        int64     `json:"id"`
	AppID     int64     `json:"appId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
