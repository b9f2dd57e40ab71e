package logger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type runKey struct{}

type run struct {
	kind string
	id   string
}

// WithRun tags ctx with a run kind and a fresh run id.
func WithRun(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, runKey{}, run{kind: kind, id: uuid.New().String()})
}

// RunID returns the run id stored by WithRun, or "".
func RunID(ctx context.Context) string {
	if r, ok := ctx.Value(runKey{}).(run); ok {
		return r.id
	}
	return ""
}

func prefix(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if r, ok := ctx.Value(runKey{}).(run); ok {
		return fmt.Sprintf("[%s] [id=%s] ", r.kind, r.id)
	}
	return ""
}

func Debugf(ctx context.Context, format string, args ...interface{}) {
	log.Debug(prefix(ctx) + fmt.Sprintf(format, args...))
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	log.Info(prefix(ctx) + fmt.Sprintf(format, args...))
}

func Warnf(ctx context.Context, format string, args ...interface{}) {
	log.Warn(prefix(ctx) + fmt.Sprintf(format, args...))
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	log.Error(prefix(ctx) + fmt.Sprintf(format, args...))
}
