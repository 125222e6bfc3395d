package middleware

import (
	"context"
	"dsg-rpc/message"
	"time"
)

// ErrMsgTimeout is the reply error of a post whose handler overran its deadline.
const ErrMsgTimeout = "request timed out"

// TimeoutMiddleware bounds each handler call. The handler sees the deadline on
// ctx; if it does not return in time the caller gets ErrMsgTimeout and the late
// result is discarded.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.PostObject) *message.PostObject {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.PostObject, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return ErrorReply(req, ErrMsgTimeout)
			}
		}
	}
}
