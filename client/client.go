// Package client sends typed commands to a device and decodes the typed reply.
//
// Every call follows the same pipeline over a Stack:
//
//	ResolveLocalDevice ──→ payload.Encode ──→ object.Encode(dec, device, obj_type, body)
//	        ──→ PostObject("dsg_local_commands", level=router, target?)
//	        ──→ object.Decode(reply) ──→ payload.Decode(body, reply)
//
// The client keeps no per-call state, so one Client serves any number of
// concurrent calls. Cancellation and deadlines come from the caller's context;
// there is no internal timeout and no retry.
package client

import (
	"context"
	"dsg-rpc/command"
	"dsg-rpc/message"
	"dsg-rpc/metrics"
	"dsg-rpc/object"
	"dsg-rpc/payload"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Stack is the object transport a Client posts through.
type Stack interface {
	// ResolveLocalDevice returns the id of the device this process runs on.
	ResolveLocalDevice(ctx context.Context) (object.ID, error)
	// PostObject delivers req and returns the reply post.
	PostObject(ctx context.Context, req *message.PostObject) (*message.PostObject, error)
}

// Client issues commands on behalf of one dec app.
type Client struct {
	stack   Stack
	decID   object.ID
	codec   *object.Codec
	logger  zerolog.Logger
	metrics bool
}

// Option configures a Client.
type Option func(*Client)

// WithHasher selects the id function for request objects; it must match the device's.
func WithHasher(h object.Hasher) Option {
	return func(c *Client) { c.codec = object.NewCodec(h) }
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records every call in the Prometheus collectors of package metrics.
func WithMetrics() Option {
	return func(c *Client) { c.metrics = true }
}

// New creates a client posting through stack as dec app decID.
func New(stack Stack, decID object.ID, opts ...Option) *Client {
	c := &Client{
		stack:  stack,
		decID:  decID,
		codec:  object.NewCodec(object.DefaultHasher),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("dec", decID.String()).Logger()
	return c
}

// DecID returns the dec app the client acts for.
func (c *Client) DecID() object.ID { return c.decID }

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	target message.Target
}

// To addresses the call to a specific device instead of the local one.
func To(device object.ID) CallOption {
	return func(o *callOptions) { o.target = message.TargetDevice(device) }
}

// Call sends args as an object of type objType and decodes the reply body into reply.
//
// A nil args sends an empty body. A nil reply accepts an empty body or any JSON
// value and discards it. Failures are *Error values, one per pipeline step:
// identity resolution, encoding, transport, decoding or payload format.
func (c *Client) Call(ctx context.Context, objType object.ObjType, args, reply any, opts ...CallOption) (err error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	op := command.Name(objType)
	start := time.Now()
	defer func() {
		c.finish(op, objType, o.target, start, err)
	}()

	fail := func(kind Kind, cause error) error {
		return &Error{Kind: kind, Op: op, ObjType: objType, Err: cause}
	}

	// Step 1: who are we sending from
	deviceID, err := c.stack.ResolveLocalDevice(ctx)
	if err != nil {
		return fail(KindIdentityResolution, err)
	}

	// Step 2: serialize the arguments
	body, err := payload.Encode(args)
	if err != nil {
		return fail(KindEncoding, err)
	}

	// Step 3: wrap into an object, owner is the resolved device
	objectID, raw, err := c.codec.Encode(c.decID, deviceID, objType, body)
	if err != nil {
		return fail(KindEncoding, err)
	}

	// Step 4: post and wait for the reply
	resp, err := c.stack.PostObject(ctx, &message.PostObject{
		ReqPath:  command.ReqPath,
		DecID:    c.decID,
		Level:    message.LevelRouter,
		Target:   o.target,
		ObjectID: objectID,
		Object:   raw,
	})
	if err != nil {
		return fail(KindTransport, err)
	}
	if resp == nil {
		return fail(KindTransport, errors.New("empty reply"))
	}
	if resp.Error != "" {
		return fail(KindTransport, fmt.Errorf("remote: %s", resp.Error))
	}

	// Step 5: decode and check the reply object; an empty one is truncated
	obj, err := c.codec.Decode(resp.Object)
	if err != nil {
		return fail(KindDecoding, err)
	}
	if !resp.ObjectID.IsZero() && resp.ObjectID != obj.ID {
		return fail(KindDecoding, fmt.Errorf("reply id %s does not match object %s", resp.ObjectID, obj.ID))
	}

	// Step 6: decode the reply payload
	if err := decodeReply(obj.Body(), reply); err != nil {
		return fail(KindPayloadFormat, err)
	}
	return nil
}

func decodeReply(body []byte, reply any) error {
	if reply != nil {
		return payload.Decode(body, reply)
	}
	if len(body) == 0 {
		return nil
	}
	var discard any
	return payload.Decode(body, &discard)
}

func (c *Client) finish(op string, objType object.ObjType, target message.Target, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		c.logger.Error().Err(err).
			Str("op", op).
			Int("obj_type", int(objType)).
			Str("target", target.String()).
			Dur("elapsed", elapsed).
			Msg("request failed")
	} else {
		c.logger.Debug().
			Str("op", op).
			Int("obj_type", int(objType)).
			Str("target", target.String()).
			Dur("elapsed", elapsed).
			Msg("request done")
	}
	if c.metrics {
		metrics.RecordCall(metricLabel(objType), outcome, elapsed)
	}
}

// UnregisteredLabel is the metric label shared by all unregistered obj_types,
// which keeps the label set bounded whatever callers send.
const UnregisteredLabel = "unregistered"

func metricLabel(objType object.ObjType) string {
	if !command.Registered(objType) {
		return UnregisteredLabel
	}
	return command.Name(objType)
}
