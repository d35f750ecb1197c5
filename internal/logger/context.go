package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// scoped is the context value: the caller's logger plus the topic it was narrowed to.
type scoped struct {
	base   *zap.Logger
	logger *zap.Logger
	topic  string
}

// ContextWithLogger stores a logger in the context, dropping any topic scope.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return context.WithValue(ctx, ctxKey{}, scoped{base: logger, logger: logger})
}

// FromContext extracts a logger from the context.
// Returns zap.NewNop() if no logger is found.
func FromContext(ctx context.Context) *zap.Logger {
	if s, ok := ctx.Value(ctxKey{}).(scoped); ok {
		return s.logger
	}
	return zap.NewNop()
}

// EnsureLogger stores fallback unless ctx already carries a logger.
func EnsureLogger(ctx context.Context, fallback *zap.Logger) context.Context {
	if _, ok := ctx.Value(ctxKey{}).(scoped); ok || fallback == nil {
		return ctx
	}
	return ContextWithLogger(ctx, fallback)
}

// WithTopic narrows the context logger to one topic. Every entry logged
// through FromContext afterwards carries a single "topic" field, even when
// scopes are nested.
func WithTopic(ctx context.Context, topic string) context.Context {
	s, ok := ctx.Value(ctxKey{}).(scoped)
	if !ok {
		s = scoped{base: zap.NewNop()}
	}
	if s.topic == topic && s.logger != nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, scoped{
		base:   s.base,
		logger: s.base.With(zap.String("topic", topic)),
		topic:  topic,
	})
}

// TopicFromContext returns the topic the context logger is scoped to, or "".
func TopicFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(scoped)
	return s.topic
}
