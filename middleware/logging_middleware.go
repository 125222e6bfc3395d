package middleware

import (
	"context"
	"dsg-rpc/message"
	"time"

	"github.com/rs/zerolog"
)

// LoggingMiddleware logs every post with its routing data, duration and outcome.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.PostObject) *message.PostObject {
			start := time.Now()
			resp := next(ctx, req)
			duration := time.Since(start)

			st := status(resp)
			event := logger.Debug()
			if st == "error" {
				event = logger.Warn().Str("error", resp.Error)
			}
			event.
				Str("req_path", req.ReqPath).
				Str("dec", req.DecID.String()).
				Str("target", req.Target.String()).
				Str("level", req.Level.String()).
				Str("status", st).
				Dur("duration", duration).
				Msg("post handled")
			return resp
		}
	}
}
