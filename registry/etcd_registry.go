// Package registry provides the etcd-based implementation of the Registry interface.
//
// Device routers publish the address they listen on under the device id they serve,
// so a dec app can reach any device it is told about:
//
//	Key:   /dsg/devices/{DeviceID}/{Addr}
//	Value: JSON-encoded DeviceRecord
//
// Registration uses TTL-based leases: if a router crashes, the lease expires
// and the entry is automatically removed, so no ghost endpoints stay behind.
package registry

import (
	"context"
	"dsg-rpc/object"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyPrefix is the etcd namespace of device records.
const KeyPrefix = "/dsg/devices/"

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	logger zerolog.Logger

	mu     sync.Mutex
	leases map[string]registration // key -> lease owned by this process
}

type registration struct {
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd %v: %w", endpoints, err)
	}
	return &EtcdRegistry{
		client: c,
		logger: log.With().Str("component", "registry").Logger(),
		leases: make(map[string]registration),
	}, nil
}

func devicePrefix(deviceID object.ID) string {
	return KeyPrefix + deviceID.String() + "/"
}

func deviceKey(deviceID object.ID, addr string) string {
	return devicePrefix(deviceID) + addr
}

// Register publishes rec with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease until Deregister or Close
func (r *EtcdRegistry) Register(ctx context.Context, rec DeviceRecord, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("registry: grant lease: %w", err)
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("registry: encode record: %w", err)
	}

	key := deviceKey(rec.DeviceID, rec.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("registry: put %s: %w", key, err)
	}

	// The keepalive outlives the registering call, so it gets its own context
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("registry: keepalive: %w", err)
	}

	r.mu.Lock()
	if prev, ok := r.leases[key]; ok {
		prev.cancel()
	}
	r.leases[key] = registration{lease: lease.ID, cancel: cancel}
	r.mu.Unlock()

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
		r.logger.Debug().Str("key", key).Msg("lease keepalive stopped")
	}()
	r.logger.Info().Str("device", rec.DeviceID.String()).Str("addr", rec.Addr).Int64("ttl", ttl).Msg("device registered")
	return nil
}

// Deregister removes a device endpoint and revokes its lease.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(ctx context.Context, deviceID object.ID, addr string) error {
	key := deviceKey(deviceID, addr)

	r.mu.Lock()
	reg, owned := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if owned {
		reg.cancel()
		if _, err := r.client.Revoke(ctx, reg.lease); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("revoke lease failed")
		}
	}
	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("registry: delete %s: %w", key, err)
	}
	return nil
}

// Discover returns all currently registered endpoints of a device.
func (r *EtcdRegistry) Discover(ctx context.Context, deviceID object.ID) ([]DeviceRecord, error) {
	prefix := devicePrefix(deviceID)

	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: get %s: %w", prefix, err)
	}

	records := make([]DeviceRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec DeviceRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			r.logger.Warn().Err(err).Str("key", string(kv.Key)).Msg("skipping malformed device record")
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, ErrNoDevice
	}
	return records, nil
}

// Watch monitors a device prefix in etcd and emits the updated endpoint list
// whenever it changes (new registrations, deregistrations, lease expirations).
// The channel is closed when ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, deviceID object.ID) <-chan []DeviceRecord {
	ch := make(chan []DeviceRecord, 1)
	prefix := devicePrefix(deviceID)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full list
			// (simpler than parsing individual watch events)
			records, err := r.Discover(ctx, deviceID)
			if err != nil && !errors.Is(err, ErrNoDevice) {
				r.logger.Warn().Err(err).Str("device", deviceID.String()).Msg("watch refresh failed")
				continue
			}
			select {
			case ch <- records:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close stops all keepalives and the etcd client. Leases then expire on their own.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for key, reg := range r.leases {
		reg.cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}
