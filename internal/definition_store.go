package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lychee-technology/schemata"
	"go.uber.org/zap"
)

const (
	definitionFile = "app.yml"
	databaseFile   = "data.db"
	staticDir      = "static"
)

// appLayout maps an application handle to its files under the data dir:
// apps/<handle>/{data.db,data.db.lock,app.yml,static/}.
type appLayout struct {
	root string
}

func newAppLayout(dataDir string) appLayout {
	return appLayout{root: filepath.Join(dataDir, "apps")}
}

func (l appLayout) Dir(handle string) string { return filepath.Join(l.root, handle) }

func (l appLayout) DatabasePath(handle string) string {
	return filepath.Join(l.Dir(handle), databaseFile)
}

func (l appLayout) DefinitionPath(handle string) string {
	return filepath.Join(l.Dir(handle), definitionFile)
}

func (l appLayout) StaticDir(handle string) string {
	return filepath.Join(l.Dir(handle), staticDir)
}

// loadedDefinition is a parsed definition with the row validators compiled
// for it.
type loadedDefinition struct {
	def        *schemata.ApplicationDefinition
	validators *validatorSet
}

func newLoadedDefinition(def *schemata.ApplicationDefinition) *loadedDefinition {
	return &loadedDefinition{def: def, validators: newValidatorSet()}
}

// DefinitionStore persists application definitions as app.yml and keeps
// recently used parses in a bounded cache.
type DefinitionStore struct {
	layout  appLayout
	maxSize int
	cache   *lru.Cache[string, *loadedDefinition]

	// generations counts invalidations per handle. A Load only caches its
	// parse when no invalidation happened while it was reading.
	mu          sync.Mutex
	generations map[string]uint64

	afterRead func(handle string) // test hook, runs between read and cache fill
}

func NewDefinitionStore(dataDir string, cacheSize, maxSize int) (*DefinitionStore, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	if maxSize <= 0 || maxSize > schemata.MaxDefinitionSize {
		maxSize = schemata.MaxDefinitionSize
	}
	cache, err := lru.New[string, *loadedDefinition](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create definition cache: %w", err)
	}
	return &DefinitionStore{
		layout:      newAppLayout(dataDir),
		maxSize:     maxSize,
		cache:       cache,
		generations: make(map[string]uint64),
	}, nil
}

// Load returns the current definition of handle. A handle that was never
// synced is a not_found error.
func (s *DefinitionStore) Load(handle string) (*loadedDefinition, error) {
	if ld, ok := s.cache.Get(handle); ok {
		return ld, nil
	}

	s.mu.Lock()
	gen := s.generations[handle]
	s.mu.Unlock()

	path := s.layout.DefinitionPath(handle)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, schemata.NewNotFoundError("app", handle).WithDetail("reason", "no definition synced")
		}
		return nil, schemata.NewStorageError("stat definition", err)
	}
	if info.Size() > int64(s.maxSize) {
		return nil, schemata.NewError(schemata.ErrorTypeValidation, schemata.ErrCodeSchemaTooLarge,
			fmt.Sprintf("definition is %d bytes, limit is %d", info.Size(), s.maxSize))
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, schemata.NewStorageError("read definition", err)
	}
	if s.afterRead != nil {
		s.afterRead(handle)
	}
	def, err := schemata.ParseApplication(text)
	if err != nil {
		return nil, err
	}

	ld := newLoadedDefinition(def)
	s.mu.Lock()
	if s.generations[handle] == gen {
		s.cache.Add(handle, ld)
	}
	s.mu.Unlock()
	return ld, nil
}

// Previous is like Load but reports a never synced handle as nil.
func (s *DefinitionStore) Previous(handle string) (*schemata.ApplicationDefinition, error) {
	ld, err := s.Load(handle)
	if err != nil {
		if schemata.IsType(err, schemata.ErrorTypeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ld.def, nil
}

// Save writes text as the definition of handle, replacing the file
// atomically.
func (s *DefinitionStore) Save(handle string, text []byte) error {
	if len(text) > s.maxSize {
		return schemata.NewError(schemata.ErrorTypeValidation, schemata.ErrCodeSchemaTooLarge,
			fmt.Sprintf("definition is %d bytes, limit is %d", len(text), s.maxSize))
	}
	dir := s.layout.Dir(handle)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return schemata.NewStorageError("create application directory", err)
	}
	tmp, err := os.CreateTemp(dir, definitionFile+".*")
	if err != nil {
		return schemata.NewStorageError("write definition", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(text); err != nil {
		tmp.Close()
		return schemata.NewStorageError("write definition", err)
	}
	if err := tmp.Close(); err != nil {
		return schemata.NewStorageError("write definition", err)
	}
	if err := os.Rename(tmp.Name(), s.layout.DefinitionPath(handle)); err != nil {
		return schemata.NewStorageError("write definition", err)
	}
	return nil
}

// Invalidate drops the cached parse of handle.
func (s *DefinitionStore) Invalidate(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[handle]++
	if s.cache.Remove(handle) {
		zap.S().Debugw("definition cache invalidated", "handle", handle)
	}
}
