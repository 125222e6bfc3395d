// Package server implements the device router: it accepts post frames from dec
// apps, routes each post by req path to a registered Endpoint and writes the reply
// back on the same sequence number.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → Codec.Decode → Middleware Chain → route (device query / target check / endpoint) → Codec.Encode → write reply
package server

import (
	"context"
	"dsg-rpc/codec"
	"dsg-rpc/message"
	"dsg-rpc/middleware"
	"dsg-rpc/object"
	"dsg-rpc/protocol"
	"dsg-rpc/registry"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultRegistrationTTL is the lease TTL, in seconds, of the router's registry entry.
const DefaultRegistrationTTL int64 = 10

// Endpoint handles the posts of one req path.
type Endpoint interface {
	ServePost(ctx context.Context, req *message.PostObject) *message.PostObject
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context, req *message.PostObject) *message.PostObject

func (f EndpointFunc) ServePost(ctx context.Context, req *message.PostObject) *message.PostObject {
	return f(ctx, req)
}

// Server is the router of one device.
type Server struct {
	deviceID      object.ID
	mu            sync.RWMutex
	endpoints     map[string]Endpoint     // req path → endpoint
	listener      net.Listener            // TCP listener
	wg            sync.WaitGroup          // Tracks in-flight requests for graceful shutdown
	wgMu          sync.Mutex              // orders wg.Add against the shutdown flag
	shutdown      atomic.Bool             // Set to true during shutdown to suppress Accept errors
	middlewares   []middleware.Middleware // Registered middlewares (applied in order)
	handler       middleware.HandlerFunc  // middleware(middleware(...(route)))
	registry      registry.Registry       // nil if not using discovery
	advertiseAddr string                  // Address published in the registry, e.g. "127.0.0.1:8080"
	ttl           int64
	logger        zerolog.Logger
	conns         sync.Map // net.Conn → struct{}, closed on shutdown
	ready         chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the router logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRegistrationTTL overrides DefaultRegistrationTTL.
func WithRegistrationTTL(ttl int64) Option {
	return func(s *Server) { s.ttl = ttl }
}

// NewServer creates a router for deviceID with no endpoints.
func NewServer(deviceID object.ID, opts ...Option) *Server {
	s := &Server{
		deviceID:  deviceID,
		endpoints: make(map[string]Endpoint),
		ttl:       DefaultRegistrationTTL,
		logger:    log.Logger,
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("device", deviceID.String()).Logger()
	return s
}

// DeviceID returns the device this router serves.
func (svr *Server) DeviceID() object.ID { return svr.deviceID }

// Handle registers ep for reqPath, replacing any previous endpoint.
func (svr *Server) Handle(reqPath string, ep Endpoint) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.endpoints[reqPath] = ep
}

// Use registers a middleware. Middlewares are applied in the order they are added
// and must be registered before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// ListenAndServe listens on address and calls Serve.
func (svr *Server) ListenAndServe(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", address, err)
	}
	return svr.Serve(listener, advertiseAddr, reg)
}

// Serve publishes the router in reg (if non-nil) under advertiseAddr and runs the
// Accept loop until Shutdown.
//
// advertiseAddr is the address other hosts dial. It differs from the listen address
// because ":8080" resolves to "[::]:8080" locally. Empty means the listener address.
func (svr *Server) Serve(listener net.Listener, advertiseAddr string, reg registry.Registry) error {
	svr.listener = listener
	if advertiseAddr == "" {
		advertiseAddr = listener.Addr().String()
	}
	svr.advertiseAddr = advertiseAddr

	// Build the middleware chain once at startup (not per-request)
	svr.handler = middleware.Chain(svr.middlewares...)(svr.route)

	if reg != nil {
		svr.registry = reg
		rec := registry.DeviceRecord{DeviceID: svr.deviceID, Addr: advertiseAddr, Weight: 1}
		if err := reg.Register(context.Background(), rec, svr.ttl); err != nil {
			_ = listener.Close()
			return fmt.Errorf("server: register device: %w", err)
		}
	}
	svr.logger.Info().Str("listen", listener.Addr().String()).Str("advertise", advertiseAddr).Msg("router serving")
	close(svr.ready)

	// Accept loop: one goroutine per connection
	for {
		conn, err := listener.Accept()
		if err != nil {
			// During shutdown, listener.Close() causes Accept to return an error.
			// Check the shutdown flag to distinguish intentional close from real errors.
			if svr.shutdown.Load() {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		go svr.handleConn(conn)
	}
}

// Ready is closed once Serve has registered the router and is accepting.
func (svr *Server) Ready() <-chan struct{} { return svr.ready }

// Addr returns the listener address, nil before Serve.
func (svr *Server) Addr() net.Addr {
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// handleConn processes a single TCP connection.
// It runs a read loop in a single goroutine (reads must be sequential to parse frame boundaries),
// but dispatches each request to its own goroutine for parallel processing.
//
// A per-connection write mutex (writeMu) is shared among all request goroutines on this connection.
// This prevents frame interleaving when multiple goroutines write replies concurrently.
func (svr *Server) handleConn(conn net.Conn) {
	svr.conns.Store(conn, struct{}{})
	defer func() {
		svr.conns.Delete(conn)
		_ = conn.Close()
	}()
	logger := svr.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	logger.Debug().Msg("connection accepted")

	writeMu := &sync.Mutex{} // Per-connection write lock, shared by all requests on this conn
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !svr.shutdown.Load() {
				logger.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		// Skip heartbeat frames, they exist only to keep the connection alive
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		if header.MsgType != protocol.MsgTypeRequest {
			logger.Warn().Uint8("msg_type", uint8(header.MsgType)).Msg("unexpected frame from client")
			continue
		}

		// Track this request for graceful shutdown before leaving the read loop.
		// Once Shutdown has started waiting no new request may join the group.
		if !svr.track() {
			return
		}
		go svr.handleRequest(header, body, conn, writeMu, logger)
	}
}

// track adds one request to the in-flight group unless shutdown has begun.
func (svr *Server) track() bool {
	svr.wgMu.Lock()
	defer svr.wgMu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

// handleRequest processes a single post: decode → middleware → route → encode → write.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex, logger zerolog.Logger) {
	defer svr.wg.Done()

	// Step 1: Decode the frame body with the codec the caller picked
	c := codec.GetCodec(codec.CodecType(header.CodecType))
	req := &message.PostObject{}
	var resp *message.PostObject
	if err := c.Decode(body, req); err != nil {
		resp = &message.PostObject{Error: fmt.Sprintf("router: decode post: %v", err)}
	} else {
		// Step 2: Run through the middleware chain → route
		resp = svr.handler(context.Background(), req)
	}
	if resp == nil {
		resp = middleware.ErrorReply(req, "router: empty reply")
	}

	// Step 3: Encode and write the reply (protected by per-connection write lock)
	out, err := c.Encode(resp)
	if err != nil {
		logger.Error().Err(err).Str("req_path", req.ReqPath).Msg("encode reply failed")
		out, _ = c.Encode(middleware.ErrorReply(req, "router: encode reply failed"))
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	// Same seq as the request, this is how multiplexing works
	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq,
		BodyLen:   uint32(len(out)),
	}
	if err := protocol.Encode(conn, &replyHeader, out); err != nil {
		logger.Warn().Err(err).Uint32("seq", header.Seq).Msg("write reply failed")
	}
}

// route is the innermost handler. It answers device queries, refuses posts
// addressed to another device and hands the rest to the endpoint of their req path.
func (svr *Server) route(ctx context.Context, req *message.PostObject) *message.PostObject {
	if req.ReqPath == message.DevicePath {
		return &message.PostObject{ReqPath: req.ReqPath, ObjectID: svr.deviceID}
	}

	if target, ok := req.Target.Get(); ok && target != svr.deviceID {
		return middleware.ErrorReply(req, fmt.Sprintf("router: target %s is not served here", target))
	}
	if req.Level != message.LevelRouter {
		return middleware.ErrorReply(req, fmt.Sprintf("router: level %s has no handlers", req.Level))
	}

	svr.mu.RLock()
	ep, ok := svr.endpoints[req.ReqPath]
	svr.mu.RUnlock()
	if !ok {
		return middleware.ErrorReply(req, fmt.Sprintf("router: no endpoint for req_path %q", req.ReqPath))
	}
	return ep.ServePost(ctx, req)
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (dec apps stop routing to this router)
//  2. Set shutdown flag (so Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections)
//  4. Wait for in-flight requests to finish, or ctx to end
//  5. Close the remaining client connections
func (svr *Server) Shutdown(ctx context.Context) error {
	var errs *multierror.Error
	if svr.registry != nil {
		if err := svr.registry.Deregister(ctx, svr.deviceID, svr.advertiseAddr); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("server: deregister: %w", err))
		}
	}

	svr.wgMu.Lock()
	svr.shutdown.Store(true)
	svr.wgMu.Unlock()
	if svr.listener != nil {
		_ = svr.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = multierror.Append(errs, fmt.Errorf("server: waiting for in-flight posts: %w", ctx.Err()))
	}

	svr.conns.Range(func(key, _ any) bool {
		_ = key.(net.Conn).Close()
		return true
	})
	svr.logger.Info().Msg("router stopped")
	return errs.ErrorOrNil()
}
