package httpserver

import "context"

type ctxKey string

const (
	apiKeyKey    ctxKey = "kg.apiKey"
	requestIDKey ctxKey = "kg.requestID"
)

// WithAPIKey stores the authorized api key in context.
func WithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}

// APIKeyFromCtx fetches the authorized api key from context.
func APIKeyFromCtx(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(apiKeyKey).(string)
	return v, ok && v != ""
}

// WithRequestID stores the request id in context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx fetches the request id from context.
func RequestIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
