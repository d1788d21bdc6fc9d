package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/repository"
)

const tracerName = "github.com/smallbiznis/litshare/internal/service"

// EventPublisher receives committed lifecycle and security events.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// instrument carries the tracing, audit logging and event plumbing shared by
// every service.
type instrument struct {
	logger *zap.Logger
	tracer trace.Tracer
	events EventPublisher
	now    func() time.Time
}

func newInstrument(logger *zap.Logger, events EventPublisher) instrument {
	return instrument{
		logger: logger,
		tracer: otel.Tracer(tracerName),
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (i instrument) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if i.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return i.tracer.Start(ctx, name)
}

func (i instrument) audit(event string, attrs ...any) {
	logger := i.log()
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", i.clock()))
	for j := 0; j+1 < len(attrs); j += 2 {
		key, ok := attrs[j].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[j+1]))
	}
	logger.Info("audit", fields...)
}

func (i instrument) publish(ctx context.Context, event domain.Event) {
	if i.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = i.clock()
	}
	if err := i.events.Publish(ctx, event); err != nil {
		i.log().Warn("event not delivered", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (i instrument) log() *zap.Logger {
	if i.logger != nil {
		return i.logger
	}
	return zap.L()
}

func (i instrument) clock() time.Time {
	if i.now == nil {
		return time.Now().UTC()
	}
	return i.now()
}

// fail records err on span and returns it. Expected domain outcomes are not
// marked as span errors.
func fail(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	if errors.Is(err, domain.ErrStorageIO) {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// storageErr wraps unexpected repository failures, leaving context errors intact
// so callers can tell a timeout from a broken store.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NewStorageError(op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, repository.ErrConflict)
}
