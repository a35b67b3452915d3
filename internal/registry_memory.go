package internal

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lychee-technology/schemata"
)

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]schemata.UserAccount
	apps   map[int64]schemata.AppRecord
	events []schemata.AppEvent
	now    func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		users: make(map[int64]schemata.UserAccount),
		apps:  make(map[int64]schemata.AppRecord),
		now:   time.Now,
	}
}

func (r *MemoryRegistry) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *MemoryRegistry) GetUser(_ context.Context, id int64) (*schemata.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, schemata.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	return &u, nil
}

func (r *MemoryRegistry) GetUserByName(_ context.Context, username string) (*schemata.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, schemata.NewNotFoundError("user", username)
}

func (r *MemoryRegistry) CreateUser(_ context.Context, user *schemata.UserAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return schemata.NewValidationError("username", "username already taken")
		}
	}
	user.ID = r.id()
	user.CreatedAt = r.now()
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryRegistry) UpdateUser(_ context.Context, user *schemata.UserAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.users[user.ID]
	if !ok {
		return schemata.NewNotFoundError("user", strconv.FormatInt(user.ID, 10))
	}
	old.Username = user.Username
	old.Email = user.Email
	r.users[user.ID] = old
	return nil
}

// DeleteUser removes the user and every application it owns.
func (r *MemoryRegistry) DeleteUser(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return schemata.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	delete(r.users, id)
	for appID, a := range r.apps {
		if a.OwnerID == id {
			r.deleteAppLocked(appID)
		}
	}
	return nil
}

func (r *MemoryRegistry) ListUsers(_ context.Context) ([]schemata.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemata.UserAccount, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRegistry) GetApp(_ context.Context, handle string) (*schemata.AppRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.apps {
		if a.Handle == handle {
			return &a, nil
		}
	}
	return nil, schemata.NewNotFoundError("app", handle)
}

func (r *MemoryRegistry) CreateApp(_ context.Context, app *schemata.AppRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[app.OwnerID]; !ok {
		return schemata.NewNotFoundError("user", strconv.FormatInt(app.OwnerID, 10))
	}
	for _, a := range r.apps {
		if a.Handle == app.Handle {
			return schemata.NewValidationError("handle", "handle already taken")
		}
	}
	app.ID = r.id()
	app.CreatedAt = r.now()
	r.apps[app.ID] = *app
	return nil
}

func (r *MemoryRegistry) UpdateApp(_ context.Context, app *schemata.AppRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.apps[app.ID]
	if !ok {
		return schemata.NewNotFoundError("app", app.Handle)
	}
	old.Name = app.Name
	old.AdminToken = app.AdminToken
	old.GitRepo = app.GitRepo
	old.GitRef = app.GitRef
	r.apps[app.ID] = old
	return nil
}

func (r *MemoryRegistry) DeleteApp(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[id]; !ok {
		return schemata.NewNotFoundError("app", strconv.FormatInt(id, 10))
	}
	r.deleteAppLocked(id)
	return nil
}

func (r *MemoryRegistry) deleteAppLocked(id int64) {
	delete(r.apps, id)
	kept := r.events[:0]
	for _, e := range r.events {
		if e.AppID != id {
			kept = append(kept, e)
		}
	}
	r.events = kept
}

func (r *MemoryRegistry) ListApps(_ context.Context, ownerID int64) ([]schemata.AppRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []schemata.AppRecord
	for _, a := range r.apps {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRegistry) AppendEvent(_ context.Context, appID int64, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[appID]; !ok {
		return schemata.NewNotFoundError("app", strconv.FormatInt(appID, 10))
	}
	r.events = append(r.events, schemata.AppEvent{ID: r.id(), AppID: appID, Content: content, CreatedAt: r.now()})
	return nil
}

func (r *MemoryRegistry) ListEvents(_ context.Context, appID int64) ([]schemata.AppEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []schemata.AppEvent
	for _, e := range r.events {
		if e.AppID == appID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) Close() {}

var _ schemata.Registry = (*MemoryRegistry)(nil)
