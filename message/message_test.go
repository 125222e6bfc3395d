package message

import (
	"dsg-rpc/object"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget(t *testing.T) {
	none := NoTarget()
	_, ok := none.Get()
	assert.False(t, ok)
	assert.False(t, none.IsSet())
	assert.Equal(t, "local", none.String())
	assert.Equal(t, Target{}, none)

	dev := object.ID{7}
	target := TargetDevice(dev)
	id, ok := target.Get()
	assert.True(t, ok)
	assert.Equal(t, dev, id)
	assert.Equal(t, dev.String(), target.String())

	// A zero id is still an explicit target.
	assert.True(t, TargetDevice(object.ZeroID).IsSet())
}

func TestWireRoundTrip(t *testing.T) {
	req := &PostObject{
		ReqPath:  "dsg_local_commands",
		DecID:    object.ID{1},
		Level:    LevelRouter,
		Target:   TargetDevice(object.ID{2}),
		ObjectID: object.ID{3},
		Object:   []byte("raw"),
	}

	var got PostObject
	require.NoError(t, got.FromWire(req.ToWire()))
	assert.Equal(t, *req, got)

	resp := &PostObject{Error: "boom"}
	var gotResp PostObject
	require.NoError(t, gotResp.FromWire(resp.ToWire()))
	assert.Equal(t, "boom", gotResp.Error)
	assert.False(t, gotResp.Target.IsSet())
}

func TestFromWireRejectsBadID(t *testing.T) {
	var p PostObject
	assert.Error(t, p.FromWire(&Wire{DecID: []byte{1, 2, 3}}))
	assert.Error(t, p.FromWire(&Wire{HasTarget: true}))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "router", LevelRouter.String())
	assert.Equal(t, "noc", LevelNOC.String())
	assert.Equal(t, "unknown", Level(9).String())
}
