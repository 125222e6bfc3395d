package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// etcdEndpoints returns the endpoints from DSG_ETCD_ENDPOINTS or skips the test.
func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	raw := os.Getenv("DSG_ETCD_ENDPOINTS")
	if raw == "" {
		t.Skip("DSG_ETCD_ENDPOINTS not set")
	}
	return strings.Split(raw, ",")
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 2*time.Second)
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	device := testDevice(7)
	rec1 := DeviceRecord{DeviceID: device, Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	rec2 := DeviceRecord{DeviceID: device, Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}
	require.NoError(t, reg.Register(ctx, rec1, 10))
	require.NoError(t, reg.Register(ctx, rec2, 10))

	records, err := reg.Discover(ctx, device)
	require.NoError(t, err)
	assert.ElementsMatch(t, []DeviceRecord{rec1, rec2}, records)

	require.NoError(t, reg.Deregister(ctx, device, rec1.Addr))
	records, err = reg.Discover(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, []DeviceRecord{rec2}, records)

	require.NoError(t, reg.Deregister(ctx, device, rec2.Addr))
	_, err = reg.Discover(ctx, device)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestEtcdWatch(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 2*time.Second)
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	device := testDevice(8)
	updates := reg.Watch(ctx, device)
	time.Sleep(100 * time.Millisecond)

	rec := DeviceRecord{DeviceID: device, Addr: "127.0.0.1:8101", Weight: 1}
	require.NoError(t, reg.Register(ctx, rec, 10))
	defer reg.Deregister(context.Background(), device, rec.Addr)

	select {
	case got := <-updates:
		assert.Equal(t, []DeviceRecord{rec}, got)
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
}
