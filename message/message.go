// Package message defines the post-object message exchanged between a dec app and
// the router that delivers objects to devices.
//
// PostObject is the "envelope around the envelope": it carries one serialized object
// plus the routing metadata the router needs. It gets serialized by the codec layer
// and wrapped in a protocol frame for transmission over TCP.
package message

import (
	"dsg-rpc/object"
)

// DevicePath is the req path a router answers with its own device id, carried
// in the reply's ObjectID.
const DevicePath = "/util/device"

// Level selects how far a post travels.
type Level byte

const (
	LevelNOC    Level = 0 // Local object cache only
	LevelNON    Level = 1 // Local stack, no router handlers
	LevelRouter Level = 2 // Routed to the target device's handler chain
)

func (l Level) String() string {
	switch l {
	case LevelNOC:
		return "noc"
	case LevelNON:
		return "non"
	case LevelRouter:
		return "router"
	default:
		return "unknown"
	}
}

// Target is the optional destination device of a post.
// The zero value is "no target": the router delivers to itself.
type Target struct {
	id  object.ID
	set bool
}

// NoTarget lets the router infer the destination (loopback to the local device).
func NoTarget() Target { return Target{} }

// TargetDevice addresses a specific device.
func TargetDevice(id object.ID) Target { return Target{id: id, set: true} }

// Get returns the device id and whether a target was given.
func (t Target) Get() (object.ID, bool) { return t.id, t.set }

// IsSet reports whether an explicit target was given.
func (t Target) IsSet() bool { return t.set }

func (t Target) String() string {
	if !t.set {
		return "local"
	}
	return t.id.String()
}

// PostObject carries a single request or response.
//
//   - On request:  ReqPath, DecID, Level and Object are set; Target is optional.
//   - On response: ObjectID/Object hold the reply object, Error is non-empty if the
//     router or the handler failed. An empty Object with no Error means the handler
//     passed on the request.
type PostObject struct {
	ReqPath  string    // Routing path tag, e.g. "dsg_local_commands"
	DecID    object.ID // Dec app the request is made on behalf of
	Level    Level
	Target   Target
	ObjectID object.ID // Content-derived id of Object
	Object   []byte    // Serialized object
	Error    string
}

// Wire is the flat form of PostObject used by the reflection-based codecs.
type Wire struct {
	ReqPath   string `json:"req_path" msgpack:"req_path"`
	DecID     []byte `json:"dec_id" msgpack:"dec_id"`
	Level     Level  `json:"level" msgpack:"level"`
	HasTarget bool   `json:"has_target,omitempty" msgpack:"has_target,omitempty"`
	Target    []byte `json:"target,omitempty" msgpack:"target,omitempty"`
	ObjectID  []byte `json:"object_id,omitempty" msgpack:"object_id,omitempty"`
	Object    []byte `json:"object,omitempty" msgpack:"object,omitempty"`
	Error     string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// ToWire flattens p.
func (p *PostObject) ToWire() *Wire {
	w := &Wire{
		ReqPath: p.ReqPath,
		DecID:   p.DecID[:],
		Level:   p.Level,
		Object:  p.Object,
		Error:   p.Error,
	}
	if !p.ObjectID.IsZero() {
		w.ObjectID = p.ObjectID[:]
	}
	if id, ok := p.Target.Get(); ok {
		w.HasTarget = true
		w.Target = id[:]
	}
	return w
}

// FromWire fills p from w. Ids must be absent or exactly object.IDLen bytes.
func (p *PostObject) FromWire(w *Wire) error {
	var err error
	*p = PostObject{
		ReqPath: w.ReqPath,
		Level:   w.Level,
		Object:  w.Object,
		Error:   w.Error,
	}
	if len(w.DecID) > 0 {
		if p.DecID, err = object.IDFromBytes(w.DecID); err != nil {
			return err
		}
	}
	if len(w.ObjectID) > 0 {
		if p.ObjectID, err = object.IDFromBytes(w.ObjectID); err != nil {
			return err
		}
	}
	if w.HasTarget {
		id, err := object.IDFromBytes(w.Target)
		if err != nil {
			return err
		}
		p.Target = TargetDevice(id)
	}
	return nil
}
