// Package transport also provides Pool, a per-address set of shared ClientTransports.
//
// Unlike a borrow/return pool, every transport in a Pool stays shared: a multiplexed
// connection serves many concurrent posts, so Get hands the same transport to many
// callers and picks among the open ones round-robin.
//
//	Get("a:1") ──→ slot["a:1"] = [t0, t1, t2] ──next──→ t1
//
// Slots grow lazily up to the pool size. Broken transports are pruned on the next Get.
package transport

import (
	"context"
	"dsg-rpc/codec"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultPoolSize is the number of connections kept per router address.
const DefaultPoolSize = 4

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("transport: pool closed")

// DialFunc opens a raw connection to addr.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Pool manages shared transports to any number of addresses.
type Pool struct {
	mu     sync.Mutex
	slots  map[string]*slot
	size   int
	codec  codec.CodecType
	dial   DialFunc
	opts   []Option
	closed bool
	logger zerolog.Logger
}

type slot struct {
	conns []*ClientTransport
	next  uint64
}

// PoolOption tweaks a Pool at construction.
type PoolOption func(*Pool)

// WithDialer replaces the default TCP dialer.
func WithDialer(dial DialFunc) PoolOption {
	return func(p *Pool) { p.dial = dial }
}

// WithTransportOptions are applied to every transport the pool creates.
func WithTransportOptions(opts ...Option) PoolOption {
	return func(p *Pool) { p.opts = append(p.opts, opts...) }
}

// WithPoolLogger sets the pool logger; it is also handed to new transports.
func WithPoolLogger(logger zerolog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates an empty pool. size <= 0 selects DefaultPoolSize.
func NewPool(size int, codecType codec.CodecType, opts ...PoolOption) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &Pool{
		slots:  make(map[string]*slot),
		size:   size,
		codec:  codecType,
		logger: log.Logger,
	}
	p.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
		return d.DialContext(ctx, "tcp", addr)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns a live transport for addr.
// Strategy:
//  1. Drop transports of addr that have broken since the last call
//  2. If the slot is below the pool size, dial a new connection
//  3. Otherwise rotate over the existing ones
func (p *Pool) Get(ctx context.Context, addr string) (*ClientTransport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	s, ok := p.slots[addr]
	if !ok {
		s = &slot{}
		p.slots[addr] = s
	}

	live := s.conns[:0]
	for _, t := range s.conns {
		if !t.Broken() {
			live = append(live, t)
		}
	}
	if dropped := len(s.conns) - len(live); dropped > 0 {
		p.logger.Debug().Str("addr", addr).Int("dropped", dropped).Msg("pruned broken transports")
	}
	s.conns = live

	if len(s.conns) < p.size {
		conn, err := p.dial(ctx, addr)
		if err != nil {
			if len(s.conns) > 0 {
				// still have a working connection, serve from it
				return p.pick(s), nil
			}
			return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
		}
		opts := append([]Option{WithLogger(p.logger)}, p.opts...)
		t := NewClientTransport(conn, p.codec, opts...)
		s.conns = append(s.conns, t)
		return t, nil
	}
	return p.pick(s), nil
}

func (p *Pool) pick(s *slot) *ClientTransport {
	t := s.conns[s.next%uint64(len(s.conns))]
	s.next++
	return t
}

// Len reports the number of transports currently held for addr.
func (p *Pool) Len(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[addr]; ok {
		return len(s.conns)
	}
	return 0
}

// Close shuts every transport. Pending calls on them fail with ErrTransportClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	slots := p.slots
	p.slots = make(map[string]*slot)
	p.mu.Unlock()

	var g errgroup.Group
	for _, s := range slots {
		for _, t := range s.conns {
			g.Go(t.Close)
		}
	}
	return g.Wait()
}
