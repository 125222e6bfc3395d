package registry

import (
	"context"
	"dsg-rpc/object"
	"sync"
)

// StaticRegistry keeps device records in memory. It serves fixed topologies read
// from configuration and tests; ttl is ignored.
type StaticRegistry struct {
	mu       sync.RWMutex
	devices  map[object.ID][]DeviceRecord
	watchers map[object.ID][]chan []DeviceRecord
}

// NewStaticRegistry creates a registry preloaded with records.
func NewStaticRegistry(records ...DeviceRecord) *StaticRegistry {
	r := &StaticRegistry{
		devices:  make(map[object.ID][]DeviceRecord),
		watchers: make(map[object.ID][]chan []DeviceRecord),
	}
	for _, rec := range records {
		r.devices[rec.DeviceID] = upsert(r.devices[rec.DeviceID], rec)
	}
	return r
}

func upsert(list []DeviceRecord, rec DeviceRecord) []DeviceRecord {
	for i := range list {
		if list[i].Addr == rec.Addr {
			list[i] = rec
			return list
		}
	}
	return append(list, rec)
}

func (r *StaticRegistry) Register(_ context.Context, rec DeviceRecord, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[rec.DeviceID] = upsert(r.devices[rec.DeviceID], rec)
	r.notifyLocked(rec.DeviceID)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, deviceID object.ID, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.devices[deviceID]
	kept := list[:0]
	for _, rec := range list {
		if rec.Addr != addr {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		delete(r.devices, deviceID)
	} else {
		r.devices[deviceID] = kept
	}
	r.notifyLocked(deviceID)
	return nil
}

func (r *StaticRegistry) Discover(_ context.Context, deviceID object.ID) ([]DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.devices[deviceID]
	if len(list) == 0 {
		return nil, ErrNoDevice
	}
	return append([]DeviceRecord(nil), list...), nil
}

// Watch emits the record list of deviceID after every change until ctx ends.
// A watcher that has not consumed the previous list only sees the latest one.
func (r *StaticRegistry) Watch(ctx context.Context, deviceID object.ID) <-chan []DeviceRecord {
	ch := make(chan []DeviceRecord, 1)
	r.mu.Lock()
	r.watchers[deviceID] = append(r.watchers[deviceID], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.watchers[deviceID]
		for i, w := range list {
			if w == ch {
				r.watchers[deviceID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (r *StaticRegistry) notifyLocked(deviceID object.ID) {
	snapshot := append([]DeviceRecord(nil), r.devices[deviceID]...)
	for _, ch := range r.watchers[deviceID] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func (r *StaticRegistry) Close() error { return nil }
