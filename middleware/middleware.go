// Package middleware wraps the router's post handler in an onion of concerns.
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	Execution order: A.before → B.before → C.before → handler → C.after → B.after → A.after
//
// A handler always returns a post; failures travel in its Error field so the
// router can still answer the caller on the same sequence number.
package middleware

import (
	"context"
	"dsg-rpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.PostObject) *message.PostObject

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines several middlewares into one; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// ErrorReply builds the reply for a request that failed before or inside the handler.
func ErrorReply(req *message.PostObject, msg string) *message.PostObject {
	return &message.PostObject{ReqPath: req.ReqPath, DecID: req.DecID, Error: msg}
}

// status labels a reply for logs and metrics.
func status(resp *message.PostObject) string {
	switch {
	case resp == nil:
		return "empty"
	case resp.Error != "":
		return "error"
	case len(resp.Object) == 0:
		return "pass"
	default:
		return "ok"
	}
}
