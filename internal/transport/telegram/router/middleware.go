package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "gitnotify/pkg/logx"
)

// slowRequest is the latency above which a successful request is logged at
// info instead of debug.
const slowRequest = 750 * time.Millisecond

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// wrap applies the standard stack every command and callback runs under.
func (m *Manager) wrap(h HandlerFunc, timeout time.Duration) HandlerFunc {
	return Chain(h, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(timeout))
}

// MWTimeout bounds the handler context; d <= 0 leaves it unbounded.
func MWTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return func(next HandlerFunc) HandlerFunc { return next }
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(tctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error. A panicking callback
// still gets answered so the client spinner stops.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				req.log(log).Error("handler panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				req.Answer(ctx, "internal error")
				err = fmt.Errorf("panic in %s: %v", req.Command, r)
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs every request once it finished.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			l := req.log(log).With(logx.Duration("took", took))
			if req.Data != "" {
				l = l.With(logx.String("data", req.Data))
			}
			switch {
			case err != nil:
				l.Warn("request failed", logx.Err(err))
			case took >= slowRequest:
				l.Info("slow request")
			default:
				l.Debug("request done")
			}
			return err
		}
	}
}

// log returns the request-scoped logger, or fallback when there is none.
func (r *Request) log(fallback logx.Logger) logx.Logger {
	if r == nil || r.Logger.IsZero() {
		return fallback
	}
	return r.Logger
}
