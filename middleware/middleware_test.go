package middleware

import (
	"bytes"
	"context"
	"dsg-rpc/message"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler answers with the request object
func echoHandler(ctx context.Context, req *message.PostObject) *message.PostObject {
	return &message.PostObject{ReqPath: req.ReqPath, Object: []byte("ok")}
}

// slowHandler sleeps 200ms
func slowHandler(ctx context.Context, req *message.PostObject) *message.PostObject {
	time.Sleep(200 * time.Millisecond)
	return echoHandler(ctx, req)
}

func failingHandler(ctx context.Context, req *message.PostObject) *message.PostObject {
	return ErrorReply(req, "boom")
}

var testReq = &message.PostObject{ReqPath: "dsg_local_commands", Level: message.LevelRouter}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	resp := LoggingMiddleware(logger)(echoHandler)(context.Background(), testReq)
	require.NotNil(t, resp)
	assert.Equal(t, []byte("ok"), resp.Object)
	assert.Contains(t, buf.String(), `"req_path":"dsg_local_commands"`)
	assert.Contains(t, buf.String(), `"status":"ok"`)

	buf.Reset()
	LoggingMiddleware(logger)(failingHandler)(context.Background(), testReq)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestTimeoutPass(t *testing.T) {
	resp := TimeoutMiddleware(500*time.Millisecond)(echoHandler)(context.Background(), testReq)
	assert.Empty(t, resp.Error)
}

func TestTimeoutExceeded(t *testing.T) {
	resp := TimeoutMiddleware(50*time.Millisecond)(slowHandler)(context.Background(), testReq)
	assert.Equal(t, ErrMsgTimeout, resp.Error)
	assert.Equal(t, testReq.ReqPath, resp.ReqPath)
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), testReq)
		require.Empty(t, resp.Error, "request %d", i)
	}
	resp := handler(context.Background(), testReq)
	assert.Equal(t, ErrMsgRateLimited, resp.Error)
}

func TestMetrics(t *testing.T) {
	req := &message.PostObject{ReqPath: "metrics_test"}
	handler := MetricsMiddleware()(failingHandler)
	handler(context.Background(), req)
	handler(context.Background(), req)
	assert.Equal(t, 2.0, routedCount(t, "metrics_test", "error"))
}

// routedCount reads dsg_router_objects_total for one label pair from the default registry.
func routedCount(t *testing.T, reqPath, status string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "dsg_router_objects_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["req_path"] == reqPath && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.PostObject) *message.PostObject {
				order = append(order, name+".before")
				resp := next(ctx, req)
				order = append(order, name+".after")
				return resp
			}
		}
	}
	handler := Chain(mark("A"), mark("B"), TimeoutMiddleware(500*time.Millisecond))(echoHandler)
	resp := handler(context.Background(), testReq)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Error)
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}
