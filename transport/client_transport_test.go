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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// echoRouter answers every request with the same object and ReqPath prefixed by "re:".
// A post whose ReqPath is "slow" is answered after delay; "hang" is never answered.
type echoRouter struct {
	ln    net.Listener
	delay time.Duration
	mu    sync.Mutex
	conns []net.Conn
}

func startEchoRouter(t *testing.T, delay time.Duration) *echoRouter {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &echoRouter{ln: ln, delay: delay}
	go r.serve()
	t.Cleanup(func() { r.close() })
	return r
}

func (r *echoRouter) addr() string { return r.ln.Addr().String() }

func (r *echoRouter) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conns = append(r.conns, conn)
		r.mu.Unlock()
		go r.handle(conn)
	}
}

func (r *echoRouter) handle(conn net.Conn) {
	var wmu sync.Mutex
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			return
		}
		if header.MsgType != protocol.MsgTypeRequest {
			continue
		}
		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		req := &message.PostObject{}
		if err := cdc.Decode(body, req); err != nil {
			return
		}
		go func(seq uint32, req *message.PostObject) {
			switch req.ReqPath {
			case "hang":
				return
			case "slow":
				time.Sleep(r.delay)
			}
			resp := &message.PostObject{
				ReqPath:  "re:" + req.ReqPath,
				ObjectID: req.ObjectID,
				Object:   req.Object,
			}
			out, err := cdc.Encode(resp)
			if err != nil {
				return
			}
			wmu.Lock()
			defer wmu.Unlock()
			_ = protocol.Encode(conn, &protocol.Header{
				CodecType: header.CodecType,
				MsgType:   protocol.MsgTypeResponse,
				Seq:       seq,
				BodyLen:   uint32(len(out)),
			}, out)
		}(header.Seq, req)
	}
}

// dropAll closes every accepted connection, simulating a router crash.
func (r *echoRouter) dropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		_ = c.Close()
	}
	r.conns = nil
}

func (r *echoRouter) close() {
	_ = r.ln.Close()
	r.dropAll()
}

func dialTransport(t *testing.T, addr string, codecType codec.CodecType) *ClientTransport {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	ct := NewClientTransport(conn, codecType, WithHeartbeat(0))
	t.Cleanup(func() { _ = ct.Close() })
	return ct
}

func TestClientTransportSerial(t *testing.T) {
	router := startEchoRouter(t, 0)

	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeBinary, codec.CodecTypeMsgpack} {
		t.Run(ct.String(), func(t *testing.T) {
			tr := dialTransport(t, router.addr(), ct)
			for i := 0; i < 3; i++ {
				path := fmt.Sprintf("path-%d", i)
				resp, err := tr.RoundTrip(context.Background(), &message.PostObject{
					ReqPath: path,
					Level:   message.LevelRouter,
					Object:  []byte{byte(i), 1, 2},
				})
				require.NoError(t, err)
				assert.Equal(t, "re:"+path, resp.ReqPath)
				assert.Equal(t, []byte{byte(i), 1, 2}, resp.Object)
			}
		})
	}
}

// Many goroutines share one connection; each must get its own response back.
func TestClientTransportConcurrent(t *testing.T) {
	router := startEchoRouter(t, 5*time.Millisecond)
	tr := dialTransport(t, router.addr(), codec.CodecTypeBinary)

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		n := i
		g.Go(func() error {
			path := fmt.Sprintf("call-%d", n)
			if n%5 == 0 {
				path = "slow"
			}
			resp, err := tr.RoundTrip(context.Background(), &message.PostObject{
				ReqPath: path,
				Object:  []byte{byte(n)},
			})
			if err != nil {
				return err
			}
			if resp.ReqPath != "re:"+path || len(resp.Object) != 1 || resp.Object[0] != byte(n) {
				return fmt.Errorf("call %d got mismatched response %q %v", n, resp.ReqPath, resp.Object)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestClientTransportContextCancel(t *testing.T) {
	router := startEchoRouter(t, 0)
	tr := dialTransport(t, router.addr(), codec.CodecTypeJSON)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.RoundTrip(ctx, &message.PostObject{ReqPath: "hang"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the connection is still usable after an abandoned call
	resp, err := tr.RoundTrip(context.Background(), &message.PostObject{ReqPath: "after"})
	require.NoError(t, err)
	assert.Equal(t, "re:after", resp.ReqPath)
}

func TestClientTransportBrokenConnFailsPending(t *testing.T) {
	router := startEchoRouter(t, 0)
	tr := dialTransport(t, router.addr(), codec.CodecTypeJSON)

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.RoundTrip(context.Background(), &message.PostObject{ReqPath: "hang"})
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	router.dropAll()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not released when the connection broke")
	}
	assert.True(t, tr.Broken())

	_, err := tr.RoundTrip(context.Background(), &message.PostObject{ReqPath: "x"})
	require.ErrorIs(t, err, ErrTransportClosed)
}

func TestClientTransportCloseReleasesPending(t *testing.T) {
	router := startEchoRouter(t, 0)
	tr := dialTransport(t, router.addr(), codec.CodecTypeBinary)

	_, ch, err := tr.Send(&message.PostObject{ReqPath: "hang"})
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	res := <-ch
	assert.Nil(t, res.Msg)
	assert.True(t, errors.Is(res.Err, ErrTransportClosed))
}

func TestPoolSharesAndGrows(t *testing.T) {
	router := startEchoRouter(t, 0)
	pool := NewPool(2, codec.CodecTypeBinary, WithTransportOptions(WithHeartbeat(0)))
	defer pool.Close()

	ctx := context.Background()
	a, err := pool.Get(ctx, router.addr())
	require.NoError(t, err)
	b, err := pool.Get(ctx, router.addr())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, pool.Len(router.addr()))

	// at capacity the pool rotates over the open transports
	c, err := pool.Get(ctx, router.addr())
	require.NoError(t, err)
	d, err := pool.Get(ctx, router.addr())
	require.NoError(t, err)
	assert.ElementsMatch(t, []*ClientTransport{a, b}, []*ClientTransport{c, d})
	assert.Equal(t, 2, pool.Len(router.addr()))
}

func TestPoolReplacesBrokenTransport(t *testing.T) {
	router := startEchoRouter(t, 0)
	pool := NewPool(1, codec.CodecTypeJSON, WithTransportOptions(WithHeartbeat(0)))
	defer pool.Close()

	first, err := pool.Get(context.Background(), router.addr())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := pool.Get(context.Background(), router.addr())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.False(t, second.Broken())

	resp, err := second.RoundTrip(context.Background(), &message.PostObject{ReqPath: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "re:ok", resp.ReqPath)
}

func TestPoolDialFailure(t *testing.T) {
	dialErr := errors.New("refused")
	pool := NewPool(1, codec.CodecTypeJSON, WithDialer(func(context.Context, string) (net.Conn, error) {
		return nil, dialErr
	}))
	_, err := pool.Get(context.Background(), "127.0.0.1:1")
	require.ErrorIs(t, err, dialErr)
}

func TestPoolClosed(t *testing.T) {
	router := startEchoRouter(t, 0)
	pool := NewPool(1, codec.CodecTypeJSON, WithTransportOptions(WithHeartbeat(0)))
	tr, err := pool.Get(context.Background(), router.addr())
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	assert.True(t, tr.Broken())
	_, err = pool.Get(context.Background(), router.addr())
	require.ErrorIs(t, err, ErrPoolClosed)
}
