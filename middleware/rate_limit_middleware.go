package middleware

import (
	"context"
	"dsg-rpc/message"

	"golang.org/x/time/rate"
)

// ErrMsgRateLimited is the reply error of a post rejected by RateLimitMiddleware.
const ErrMsgRateLimited = "rate limit exceeded"

// RateLimitMiddleware admits posts through a token bucket of r per second with
// the given burst, shared by every connection of the router.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.PostObject) *message.PostObject {
			if !limiter.Allow() {
				return ErrorReply(req, ErrMsgRateLimited)
			}
			return next(ctx, req)
		}
	}
}
