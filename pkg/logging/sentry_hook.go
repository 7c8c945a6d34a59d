package logging

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
	"github.com/sirupsen/logrus"
)

// SentryContextKey is the name of the Sentry context the log data is attached to.
const SentryContextKey = "Rebuild Details"

// SentryHook is a simple adapter that converts logrus entries into Sentry events.
type SentryHook struct{}

// Fire is triggered on new log entries.
func (hook *SentryHook) Fire(entry *logrus.Entry) error {
	var hub *sentry.Hub
	if entry.Context != nil {
		hub = sentry.GetHubFromContext(entry.Context)
	}
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	client, scope := hub.Client(), hub.Scope()
	if client == nil || scope == nil {
		return nil
	}

	event := sentry.NewEvent()
	event.Timestamp = entry.Time
	event.Level = sentry.Level(entry.Level.String())
	event.Message = entry.Message

	data := make(map[string]interface{}, len(entry.Data))
	for key, value := range entry.Data {
		data[key] = value
	}
	// Add Stack Trace when an error was passed.
	if err, ok := data[logrus.ErrorKey].(error); ok {
		const maxErrorDepth = 10
		event.SetException(err, maxErrorDepth)
		data[logrus.ErrorKey] = err.Error()
	}

	event.Contexts = map[string]sentry.Context{SentryContextKey: data}
	if resource, ok := data[dto.KeyResource].(string); ok {
		event.Tags = map[string]string{dto.KeyResource: resource}
	}

	// The scope is only applied to the event, never modified.
	client.CaptureEvent(event, nil, scope)
	return nil
}

// Levels returns all levels this hook should be registered to.
func (hook *SentryHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
	}
}

// StartSpan starts a Sentry span for the callback.
func StartSpan(ctx context.Context, op, description string, callback func(context.Context)) {
	span := sentry.StartSpan(ctx, op)
	span.Description = description
	defer span.Finish()
	callback(span.Context())
}
