package factory

import (
	"context"
	"testing"

	"github.com/lychee-technology/schemata"
	"github.com/lychee-technology/schemata/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloApp = `
name: hello
models:
  - name: Greeting
    fields:
      - {type: string, name: text}
api:
  default_access: allow
  endpoints:
    - {type: string, name: hello, path: /hello, response: hi}
`

func testConfig(t *testing.T) *schemata.Config {
	t.Helper()
	config := schemata.DefaultConfig()
	config.Storage.DataDir = t.TempDir()
	return config
}

func TestNewEngineWithConfig_InvalidConfig(t *testing.T) {
	config := testConfig(t)
	config.Storage.Dialect = "oracle"

	_, err := NewEngineWithConfig(context.Background(), config)
	var cfgErr *schemata.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "storage.dialect", cfgErr.Field)
}

func TestNewEngineWithConfig_Success(t *testing.T) {
	ctx := context.Background()
	components, err := NewEngineWithConfig(ctx, testConfig(t))
	require.NoError(t, err)
	defer components.Close()

	assert.IsType(t, &internal.MemoryRegistry{}, components.Registry)
	assert.IsType(t, &internal.LocalStaticStore{}, components.Static)
	require.NotNil(t, components.Stats)

	require.NoError(t, components.Registry.CreateUser(ctx, &schemata.UserAccount{Username: "alice"}))
	app, err := components.Host.CreateApp(ctx, "alice", "hello")
	require.NoError(t, err)
	_, err = components.Host.Sync(ctx, app.Handle, []byte(helloApp))
	require.NoError(t, err)

	resp, err := components.Host.Handle(ctx, app.Handle, &schemata.Request{Method: schemata.MethodGet, Path: "/hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi", string(resp.Body))
	assert.Equal(t, uint64(1), components.Stats.Snapshot("")["api."+app.Handle+".hello.GET"])
}

func TestNewRegistry_UnsupportedDriver(t *testing.T) {
	_, err := NewRegistry(context.Background(), schemata.RegistryConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported registry driver "mysql"`)
}

func TestNewStaticStore(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		static  schemata.StaticConfig
		wantErr string
	}{
		{name: "default is local", static: schemata.StaticConfig{}},
		{name: "local", static: schemata.StaticConfig{Backend: "local"}},
		{name: "s3 with static credentials", static: schemata.StaticConfig{
			Backend:      "s3",
			Bucket:       "assets",
			Region:       "us-east-1",
			Endpoint:     "http://127.0.0.1:9000",
			AccessKey:    "minio",
			SecretKey:    "minio123",
			UsePathStyle: true,
		}},
		{name: "unknown backend", static: schemata.StaticConfig{Backend: "gcs"}, wantErr: `unsupported static backend "gcs"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig(t)
			config.Static = tt.static
			store, err := NewStaticStore(ctx, config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}
