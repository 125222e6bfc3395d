package server

import (
	"context"
	"dsg-rpc/command"
	"dsg-rpc/message"
	"dsg-rpc/object"
	"dsg-rpc/payload"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// handlerType is one registered command: the reply discriminator and a closure
// that decodes the body into the handler's argument type and calls it.
type handlerType struct {
	respType object.ObjType
	call     func(ctx context.Context, body []byte) (any, error)
}

// CommandService is the Endpoint of the dsg_local_commands req path. It decodes the
// posted object, dispatches on obj_type and answers with a reply object created by
// decID and owned by ownerID.
type CommandService struct {
	decID    object.ID
	ownerID  object.ID
	codec    *object.Codec
	logger   zerolog.Logger
	mu       sync.RWMutex
	handlers map[object.ObjType]*handlerType
}

// ServiceOption configures a CommandService.
type ServiceOption func(*CommandService)

// WithServiceHasher selects the id function; it must match the callers'.
func WithServiceHasher(h object.Hasher) ServiceOption {
	return func(s *CommandService) { s.codec = object.NewCodec(h) }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *CommandService) { s.logger = logger }
}

// NewCommandService creates a service with no handlers.
func NewCommandService(decID, ownerID object.ID, opts ...ServiceOption) *CommandService {
	s := &CommandService{
		decID:    decID,
		ownerID:  ownerID,
		codec:    object.NewCodec(object.DefaultHasher),
		logger:   log.Logger,
		handlers: make(map[object.ObjType]*handlerType),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers fn for reqType; its result is sent back as respType.
// An empty request body leaves the argument at its zero value.
func Handle[A, R any](s *CommandService, reqType, respType object.ObjType, fn func(ctx context.Context, args A) (R, error)) {
	h := &handlerType{
		respType: respType,
		call: func(ctx context.Context, body []byte) (any, error) {
			var args A
			if len(body) > 0 {
				if err := payload.Decode(body, &args); err != nil {
					return nil, err
				}
			}
			return fn(ctx, args)
		},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[reqType] = h
}

// ServePost implements Endpoint.
func (s *CommandService) ServePost(ctx context.Context, req *message.PostObject) *message.PostObject {
	reply := func(format string, args ...any) *message.PostObject {
		return &message.PostObject{ReqPath: req.ReqPath, DecID: s.decID, Error: fmt.Sprintf(format, args...)}
	}

	// Step 1: decode the object, this also checks the body against the content hash
	obj, err := s.codec.Decode(req.Object)
	if err != nil {
		return reply("commands: %v", err)
	}
	if !req.ObjectID.IsZero() && req.ObjectID != obj.ID {
		return reply("commands: object id %s does not match posted id %s", obj.ID, req.ObjectID)
	}

	// Step 2: find the handler for the discriminator
	s.mu.RLock()
	h, ok := s.handlers[obj.Type()]
	s.mu.RUnlock()
	if !ok {
		return reply("commands: obj_type %d not supported", obj.Type())
	}
	s.logger.Info().Int("obj_type", int(obj.Type())).Str("op", command.Name(obj.Type())).Msg("recv json req")

	// Step 3: call it
	result, err := h.call(ctx, obj.Body())
	if err != nil {
		s.logger.Warn().Err(err).Int("obj_type", int(obj.Type())).Msg("command failed")
		return reply("commands: %s: %v", command.Name(obj.Type()), err)
	}

	// Step 4: wrap the result into a reply object
	body, err := payload.Encode(result)
	if err != nil {
		return reply("commands: %v", err)
	}
	id, raw, err := s.codec.Encode(s.decID, s.ownerID, h.respType, body)
	if err != nil {
		return reply("commands: %v", err)
	}
	return &message.PostObject{
		ReqPath:  req.ReqPath,
		DecID:    s.decID,
		ObjectID: id,
		Object:   raw,
	}
}

// Miner is the device-side state the built-in commands act on.
type Miner interface {
	Stat(ctx context.Context) (command.MinerStat, error)
	DMCKey(ctx context.Context, account string) (string, error)
	DMCAccount(ctx context.Context) (string, error)
	SetDMCAccount(ctx context.Context, account, key string) error
	SetHTTPDomain(ctx context.Context, domain string) error
}

// RegisterMinerCommands wires every built-in command of the command package to m.
func RegisterMinerCommands(s *CommandService, m Miner) {
	Handle(s, command.GetStat, command.GetStatResp, func(ctx context.Context, _ struct{}) (command.MinerStat, error) {
		return m.Stat(ctx)
	})
	Handle(s, command.GetDMCKey, command.GetDMCKeyResp, func(ctx context.Context, account string) (string, error) {
		return m.DMCKey(ctx, account)
	})
	Handle(s, command.GetDMCAccount, command.GetDMCAccountResp, func(ctx context.Context, _ struct{}) (string, error) {
		return m.DMCAccount(ctx)
	})
	Handle(s, command.SetDMCAccount, command.SetDMCAccountResp, func(ctx context.Context, req command.SetDMCAccountReq) (string, error) {
		return "", m.SetDMCAccount(ctx, req.DMCAccount, req.DMCKey)
	})
	Handle(s, command.SetHTTPDomain, command.SetHTTPDomainResp, func(ctx context.Context, domain string) (string, error) {
		return "", m.SetHTTPDomain(ctx, domain)
	})
}
