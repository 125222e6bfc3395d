package config

import (
	"context"
	"dsg-rpc/codec"
	"dsg-rpc/object"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	decID    = object.ID{0xdc, 0x01}
	deviceID = object.ID{0xde, 0x02}
)

func TestDefaultsValidate(t *testing.T) {
	cfg, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, codec.CodecTypeBinary, cfg.Router.Codec)
}

func TestLoadOverrides(t *testing.T) {
	text := `
dec_id   = "` + decID.String() + `"
hasher   = "sha3-256"
balancer = "consistent_hash"

[router]
addr      = "10.0.0.1:1318"
codec     = "msgpack"
pool_size = 8
heartbeat = "5s"

[registry]
kind = "static"
[[registry.devices]]
device_id = "` + deviceID.String() + `"
addr      = "10.0.0.7:1318"
weight    = 3

[server]
listen     = ":9000"
device_id  = "` + deviceID.String() + `"
timeout    = "2s"
rate_limit = 50.5

[log]
level    = "debug"
no_color = true
`
	path := filepath.Join(t.TempDir(), "dsg.toml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, decID, cfg.DecID)
	assert.Equal(t, "sha3-256", cfg.Hasher)
	assert.Equal(t, "consistent_hash", cfg.Balancer)
	assert.Equal(t, RouterConfig{Addr: "10.0.0.1:1318", Codec: codec.CodecTypeMsgpack, PoolSize: 8, Heartbeat: 5 * time.Second}, cfg.Router)
	require.Len(t, cfg.Registry.Devices, 1)
	assert.Equal(t, deviceID, cfg.Registry.Devices[0].DeviceID)
	assert.Equal(t, 3, cfg.Registry.Devices[0].Weight)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, deviceID, cfg.Server.DeviceID)
	assert.Equal(t, 2*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 50.5, cfg.Server.RateLimit)
	// keys left out keep their defaults
	assert.Equal(t, int64(10), cfg.Server.TTL)
	assert.Equal(t, 100, cfg.Server.Burst)
	assert.Equal(t, LogConfig{Level: "debug", NoColor: true}, cfg.Log)

	reg, err := cfg.Registry.Open()
	require.NoError(t, err)
	records, err := reg.Discover(context.Background(), deviceID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7:1318", records[0].Addr)
}

func TestResolveCollectsAllErrors(t *testing.T) {
	_, err := Parse(`
dec_id = "not-an-id!"
[router]
codec     = "xml"
heartbeat = "soon"
`)
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 3)
	assert.Contains(t, err.Error(), "dec_id")
	assert.Contains(t, err.Error(), "router.codec")
	assert.Contains(t, err.Error(), "router.heartbeat")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Hasher = "md5"
	cfg.Balancer = "fastest"
	cfg.Router.PoolSize = 0
	cfg.Registry.Kind = RegistryEtcd
	cfg.Log.Level = "chatty"

	err := cfg.Validate()
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)

	cfg = Default()
	cfg.Registry.Kind = "consul"
	assert.Error(t, cfg.Validate())
	_, err = cfg.Registry.Open()
	assert.Error(t, err)
}

func TestOpenNoRegistry(t *testing.T) {
	reg, err := Default().Registry.Open()
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
