package logging

import (
	"context"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	ProviderKey  contextKey = "provider"
	EventIDKey   contextKey = "provider_event_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, EventIDKey, eventID)
}

func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

func GetProvider(ctx context.Context) string {
	if v, ok := ctx.Value(ProviderKey).(string); ok {
		return v
	}
	return ""
}

func GetEventID(ctx context.Context) string {
	if v, ok := ctx.Value(EventIDKey).(string); ok {
		return v
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}

	if provider := GetProvider(ctx); provider != "" {
		fields = append(fields, "provider", provider)
	}

	if eventID := GetEventID(ctx); eventID != "" {
		fields = append(fields, "provider_event_id", eventID)
	}

	return fields
}
