package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "adhanbot/pkg/logx"
)

// Handler runs one routed command.
type Handler func(ctx context.Context, req *Request) error

// slowCommand is the duration above which a successful command is logged at info.
const slowCommand = 750 * time.Millisecond

// execution is one command invocation as the router runs it: bounded by the
// command deadline, shielded from panics, and reported in a single log line.
type execution struct {
	cmd      Command
	deadline time.Duration
	log      logx.Logger
}

func (x execution) logger(req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return x.log
}

// run invokes the handler. A panic becomes an error and the user gets the
// generic failure reply instead of silence.
func (x execution) run(ctx context.Context, req *Request) (err error) {
	start := time.Now()
	hctx := ctx
	if x.deadline > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, x.deadline)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			x.logger(req).Error("command panicked",
				logx.String("command", x.cmd.Name),
				logx.Any("panic", p),
				logx.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("command %s panicked: %v", x.cmd.Name, p)
			if req != nil && req.Adapter != nil {
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				err = errors.Join(err, req.Reply(rctx, msgInternal))
				cancel()
			}
		}
		x.report(req, time.Since(start), err)
	}()
	return x.cmd.Handle(hctx, req)
}

func (x execution) report(req *Request, took time.Duration, err error) {
	fields := []logx.Field{
		logx.String("command", x.cmd.Name),
		logx.Duration("took", took),
	}
	if req != nil {
		fields = append(fields, logx.Int("args", len(req.Args)))
		if req.Message != nil {
			fields = append(fields, logx.Bool("dm", req.Message.IsDirect))
		}
	}
	log := x.logger(req)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("command timed out", append(fields, logx.Duration("deadline", x.deadline), logx.Err(err))...)
	case err != nil:
		log.Warn("command failed", append(fields, logx.Err(err))...)
	case took >= slowCommand:
		log.Info("command slow", fields...)
	default:
		log.Debug("command done", fields...)
	}
}
