package factory

import (
	"context"
	"fmt"

	"github.com/lychee-technology/schemata"
	"github.com/lychee-technology/schemata/internal"
	"go.uber.org/zap"
)

// Components is a fully wired engine plus the collaborators callers may
// need directly.
type Components struct {
	Host     *internal.Host
	Registry schemata.Registry
	Static   schemata.StaticStore
	Stats    *internal.Stats
}

// Close releases the registry connection.
func (c *Components) Close() {
	if c.Registry != nil {
		c.Registry.Close()
	}
}

// NewEngineWithConfig builds the engine described by config.
//
// Usage:
//
//	config := schemata.LoadConfigFromEnv()
//	components, err := factory.NewEngineWithConfig(ctx, config)
//	if err != nil {
//	    // handle error
//	}
//	defer components.Close()
//	resp, err := components.Host.Handle(ctx, "alice-todo", req)
func NewEngineWithConfig(ctx context.Context, config *schemata.Config) (*Components, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry, err := NewRegistry(ctx, config.Registry)
	if err != nil {
		return nil, err
	}
	static, err := NewStaticStore(ctx, config)
	if err != nil {
		registry.Close()
		return nil, err
	}
	definitions, err := internal.NewDefinitionStore(config.Storage.DataDir, config.Schema.CacheSize, config.Schema.MaxDefinitionSize)
	if err != nil {
		registry.Close()
		return nil, err
	}

	stats := internal.NewStats()
	opts := internal.StoreOptionsFromConfig(config.Storage)
	dispatcher := internal.NewDispatcher(stats, static, opts)
	host := internal.NewHost(registry, definitions, dispatcher, config.Storage.DataDir, opts)

	zap.S().Infow("engine initialized",
		"dataDir", config.Storage.DataDir,
		"dialect", config.Storage.Dialect,
		"registry", config.Registry.Driver,
		"static", config.Static.Backend,
	)
	return &Components{Host: host, Registry: registry, Static: static, Stats: stats}, nil
}

// NewRegistry opens the registry backend named by cfg.Driver.
func NewRegistry(ctx context.Context, cfg schemata.RegistryConfig) (schemata.Registry, error) {
	switch cfg.Driver {
	case "", "memory":
		return internal.NewMemoryRegistry(), nil
	case "postgres":
		return internal.OpenPostgresRegistry(ctx, cfg)
	}
	return nil, fmt.Errorf("unsupported registry driver %q", cfg.Driver)
}

// NewStaticStore opens the static file backend named by config.Static.Backend.
func NewStaticStore(ctx context.Context, config *schemata.Config) (schemata.StaticStore, error) {
	switch config.Static.Backend {
	case "", "local":
		return internal.NewLocalStaticStore(config.Storage.DataDir), nil
	case "s3":
		return internal.OpenS3StaticStore(ctx, config.Static)
	}
	return nil, fmt.Errorf("unsupported static backend %q", config.Static.Backend)
}
