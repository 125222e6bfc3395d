// Package registry maps device ids to the router addresses that can reach them.
package registry

import (
	"context"
	"dsg-rpc/object"
	"errors"
)

// ErrNoDevice is returned by Discover when a device has no registered endpoint.
var ErrNoDevice = errors.New("registry: device not registered")

// DeviceRecord is one reachable endpoint of a device.
type DeviceRecord struct {
	DeviceID object.ID `json:"device_id"`
	Addr     string    `json:"addr"`
	Weight   int       `json:"weight"` // Weight for load balancing
	Version  string    `json:"version"`
}

type Registry interface {
	Register(ctx context.Context, rec DeviceRecord, ttl int64) error
	Deregister(ctx context.Context, deviceID object.ID, addr string) error
	Discover(ctx context.Context, deviceID object.ID) ([]DeviceRecord, error)
	Watch(ctx context.Context, deviceID object.ID) <-chan []DeviceRecord
	Close() error
}
