// Package stack is the concrete object transport behind client.Client.
//
// Posts without a target go to the local router; posts with a target are routed
// to one of the target device's routers, found in the registry and picked by the
// balancer with the object id as key:
//
//	PostObject(req)
//	  ├─ no target ──────────────→ pool.Get(localAddr)
//	  └─ target ─→ registry ─→ balancer.Pick(objectID) ─→ pool.Get(addr)
//	                                         └─→ transport.RoundTrip(ctx, req)
package stack

import (
	"context"
	"dsg-rpc/loadbalance"
	"dsg-rpc/message"
	"dsg-rpc/object"
	"dsg-rpc/registry"
	"dsg-rpc/transport"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoRouter is returned by a stack that has neither a local router nor a route
// for the post.
var ErrNoRouter = errors.New("stack: no router for post")

// Stack implements client.Stack.
type Stack struct {
	localAddr string
	pool      *transport.Pool
	registry  registry.Registry
	balancer  loadbalance.Balancer
	logger    zerolog.Logger

	deviceMu sync.Mutex
	device   object.ID

	mu      sync.Mutex
	records map[object.ID][]registry.DeviceRecord // watched device endpoints
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures a Stack.
type Option func(*Stack)

// WithRegistry enables targeted posts through reg.
func WithRegistry(reg registry.Registry) Option {
	return func(s *Stack) { s.registry = reg }
}

// WithBalancer replaces the default round-robin balancer.
func WithBalancer(b loadbalance.Balancer) Option {
	return func(s *Stack) { s.balancer = b }
}

// WithLogger sets the stack logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Stack) { s.logger = logger }
}

// New creates a stack posting through pool. localAddr is the router of the
// device this process runs on.
func New(localAddr string, pool *transport.Pool, opts ...Option) *Stack {
	s := &Stack{
		localAddr: localAddr,
		pool:      pool,
		balancer:  &loadbalance.RoundRobinBalancer{},
		logger:    log.Logger,
		records:   make(map[object.ID][]registry.DeviceRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.logger = s.logger.With().Str("component", "stack").Logger()
	return s
}

// ResolveLocalDevice asks the local router for its device id. The answer is
// kept for the lifetime of the stack; failures are not.
func (s *Stack) ResolveLocalDevice(ctx context.Context) (object.ID, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	if !s.device.IsZero() {
		return s.device, nil
	}
	if s.localAddr == "" {
		return object.ZeroID, fmt.Errorf("%w: no local router configured", ErrNoRouter)
	}

	resp, err := s.roundTrip(ctx, s.localAddr, &message.PostObject{
		ReqPath: message.DevicePath,
		Level:   message.LevelNON,
	})
	if err != nil {
		return object.ZeroID, fmt.Errorf("stack: query local device: %w", err)
	}
	if resp.Error != "" {
		return object.ZeroID, fmt.Errorf("stack: query local device: %s", resp.Error)
	}
	if resp.ObjectID.IsZero() {
		return object.ZeroID, errors.New("stack: local router returned no device id")
	}
	s.device = resp.ObjectID
	s.logger.Debug().Str("device", s.device.String()).Msg("local device resolved")
	return s.device, nil
}

// PostObject delivers req and waits for the reply or for ctx to end.
func (s *Stack) PostObject(ctx context.Context, req *message.PostObject) (*message.PostObject, error) {
	addr, err := s.route(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.roundTrip(ctx, addr, req)
}

func (s *Stack) route(ctx context.Context, req *message.PostObject) (string, error) {
	target, ok := req.Target.Get()
	if !ok {
		if s.localAddr == "" {
			return "", ErrNoRouter
		}
		return s.localAddr, nil
	}
	if s.registry == nil {
		// the local router decides what to do with posts for other devices
		if s.localAddr == "" {
			return "", ErrNoRouter
		}
		return s.localAddr, nil
	}

	records, err := s.endpoints(ctx, target)
	if err != nil {
		return "", fmt.Errorf("stack: discover %s: %w", target, err)
	}
	rec, err := s.balancer.Pick(req.ObjectID, records)
	if err != nil {
		return "", fmt.Errorf("stack: pick router for %s: %w", target, err)
	}
	return rec.Addr, nil
}

// endpoints returns the routers of device. The first lookup starts a registry
// watch that keeps the cached list current until Close.
func (s *Stack) endpoints(ctx context.Context, device object.ID) ([]registry.DeviceRecord, error) {
	s.mu.Lock()
	records, watching := s.records[device]
	if !watching {
		s.records[device] = nil
	}
	s.mu.Unlock()
	if len(records) > 0 {
		return records, nil
	}
	if !watching {
		// subscribe before the first lookup so no change between the two is lost
		go s.watch(device, s.registry.Watch(s.ctx, device))
	}

	records, err := s.registry.Discover(ctx, device)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.records[device] = records
	s.mu.Unlock()
	return records, nil
}

func (s *Stack) watch(device object.ID, updates <-chan []registry.DeviceRecord) {
	for records := range updates {
		s.mu.Lock()
		s.records[device] = records
		s.mu.Unlock()
		s.logger.Debug().Str("device", device.String()).Int("endpoints", len(records)).Msg("device endpoints changed")
	}
}

func (s *Stack) roundTrip(ctx context.Context, addr string, req *message.PostObject) (*message.PostObject, error) {
	t, err := s.pool.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return t.RoundTrip(ctx, req)
}

// Close stops registry watches and closes every pooled connection.
func (s *Stack) Close() error {
	s.cancel()
	return s.pool.Close()
}
