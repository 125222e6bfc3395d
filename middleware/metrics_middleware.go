package middleware

import (
	"context"
	"dsg-rpc/message"
	"dsg-rpc/metrics"
	"time"
)

// MetricsMiddleware counts handled posts and their latency per req_path and status.
func MetricsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.PostObject) *message.PostObject {
			start := time.Now()
			resp := next(ctx, req)
			metrics.RecordRouted(req.ReqPath, status(resp), time.Since(start))
			return resp
		}
	}
}
