// Package transport implements the client side of the router connection with
// multiplexing and heartbeat.
//
// ClientTransport carries many concurrent posts over a single TCP connection.
// Each request gets a unique sequence ID, and a background goroutine (recvLoop)
// continuously reads responses and routes them to the correct caller via pending channels.
//
//	goroutine-1 ──RoundTrip(seq=1)──┐
//	goroutine-2 ──RoundTrip(seq=2)──┼──→ single TCP conn ──→ Router
//	goroutine-3 ──RoundTrip(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] chan ← response → goroutine-2 wakes up
package transport

import (
	"context"
	"dsg-rpc/codec"
	"dsg-rpc/message"
	"dsg-rpc/protocol"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultHeartbeatInterval is how often an idle connection is probed.
const DefaultHeartbeatInterval = 30 * time.Second

// ErrTransportClosed is returned for calls on a transport whose connection is gone.
var ErrTransportClosed = errors.New("transport: connection closed")

// Result is what a pending call receives: the response, or why there is none.
type Result struct {
	Msg *message.PostObject
	Err error
}

// ClientTransport manages a single multiplexed TCP connection.
type ClientTransport struct {
	conn    net.Conn        // Underlying TCP connection
	codec   codec.CodecType // Serialization format for this transport
	seq     uint32          // Monotonically increasing sequence number (protected by sending mutex)
	pending sync.Map        // seq → chan Result, one per waiting caller
	sending sync.Mutex      // serializes frame writes
	broken  atomic.Bool
	done    chan struct{}
	once    sync.Once
	logger  zerolog.Logger
}

// Option tweaks a ClientTransport at construction.
type Option func(*ClientTransport, *time.Duration)

// WithLogger sets the transport logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *ClientTransport, _ *time.Duration) { t.logger = logger }
}

// WithHeartbeat overrides the heartbeat interval; zero or negative disables it.
func WithHeartbeat(interval time.Duration) Option {
	return func(_ *ClientTransport, d *time.Duration) { *d = interval }
}

// NewClientTransport creates a transport for the given connection and starts two background goroutines:
//   - recvLoop: continuously reads responses from the connection and dispatches to pending callers
//   - heartbeatLoop: sends periodic heartbeat frames to detect dead connections
func NewClientTransport(conn net.Conn, codecType codec.CodecType, opts ...Option) *ClientTransport {
	t := &ClientTransport{
		conn:   conn,
		codec:  codecType,
		done:   make(chan struct{}),
		logger: log.Logger,
	}
	interval := DefaultHeartbeatInterval
	for _, opt := range opts {
		opt(t, &interval)
	}
	t.logger = t.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()

	go t.recvLoop()
	if interval > 0 {
		go t.heartbeatLoop(interval)
	}
	return t
}

// Send serializes and writes one request frame.
// Returns the sequence number and a channel that will receive the response.
func (t *ClientTransport) Send(msg *message.PostObject) (uint32, <-chan Result, error) {
	if t.broken.Load() {
		return 0, nil, ErrTransportClosed
	}

	// Step 1: Encode the message with the configured codec
	cdc := codec.GetCodec(t.codec)
	body, err := cdc.Encode(msg)
	if err != nil {
		return 0, nil, fmt.Errorf("transport: encode post: %w", err)
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	// Assign a unique sequence number for this request (protected by sending mutex)
	t.seq++
	seq := t.seq

	// Step 2: Build the protocol frame header
	header := protocol.Header{
		CodecType: byte(t.codec),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
		BodyLen:   uint32(len(body)),
	}

	// Step 3: Register a response channel BEFORE sending (avoid race with recvLoop)
	respChan := make(chan Result, 1) // Buffered so recvLoop never blocks on a caller that gave up
	t.pending.Store(seq, respChan)
	if t.broken.Load() {
		// fail ran between the check above and Store; nobody else will release us
		t.pending.Delete(seq)
		return 0, nil, ErrTransportClosed
	}

	// Step 4: Write the frame to the TCP connection
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		t.fail(err)
		return 0, nil, fmt.Errorf("transport: write frame: %w", err)
	}
	return seq, respChan, nil
}

// RoundTrip sends msg and waits for its response or for ctx to end.
// A cancelled call is forgotten; a late response for it is dropped by recvLoop.
func (t *ClientTransport) RoundTrip(ctx context.Context, msg *message.PostObject) (*message.PostObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seq, ch, err := t.Send(msg)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		return res.Msg, res.Err
	case <-ctx.Done():
		t.pending.Delete(seq)
		return nil, ctx.Err()
	}
}

// recvLoop runs in a dedicated goroutine, continuously reading responses from the connection.
// For each response, it looks up the sequence number in the pending map, finds the caller's
// channel, and sends the response. Responses can arrive in any order.
func (t *ClientTransport) recvLoop() {
	for {
		// Read one complete frame from the connection
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.fail(err)
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		channel, ok := t.pending.LoadAndDelete(header.Seq)
		if !ok {
			t.logger.Debug().Uint32("seq", header.Seq).Msg("dropping response for abandoned call")
			continue
		}

		// Deserialize the response body with the codec the router answered in
		resp := &message.PostObject{}
		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		if err := cdc.Decode(body, resp); err != nil {
			channel.(chan Result) <- Result{Err: fmt.Errorf("transport: decode response: %w", err)}
			continue
		}
		channel.(chan Result) <- Result{Msg: resp}
	}
}

// fail marks the transport broken, closes the connection and releases every
// pending caller so none of them blocks forever.
func (t *ClientTransport) fail(err error) {
	t.once.Do(func() {
		t.broken.Store(true)
		close(t.done)
		_ = t.conn.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, ErrTransportClosed) {
			t.logger.Warn().Err(err).Msg("router connection lost")
		}
	})
	t.closeAllPending(err)
}

func (t *ClientTransport) closeAllPending(err error) {
	if err == nil {
		err = ErrTransportClosed
	}
	t.pending.Range(func(key, value any) bool {
		if _, ok := t.pending.LoadAndDelete(key); ok {
			value.(chan Result) <- Result{Err: fmt.Errorf("%w: %v", ErrTransportClosed, err)}
		}
		return true
	})
}

// Broken reports whether the connection has failed or been closed.
func (t *ClientTransport) Broken() bool {
	return t.broken.Load()
}

// Close shuts the connection; pending calls fail with ErrTransportClosed.
func (t *ClientTransport) Close() error {
	t.fail(ErrTransportClosed)
	return nil
}

// Conn returns the underlying TCP connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop sends periodic heartbeat frames to keep the connection alive.
// Heartbeat frames have MsgType=Heartbeat and no body, so they're very lightweight.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{
			CodecType: byte(t.codec),
			MsgType:   protocol.MsgTypeHeartbeat,
		}
		// Heartbeat writes also need the sending lock to avoid frame interleaving
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			t.fail(err)
			return
		}
	}
}
