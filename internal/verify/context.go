package verify

import "context"

type requestIDKey struct{}

// WithRequestID tags ctx with the id of the request being served. Debug
// snapshots of that request are keyed under the id so concurrent requests
// never share a key.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func snapshotTag(ctx context.Context, tag string) string {
	if id := RequestID(ctx); id != "" {
		return id + "/" + tag
	}
	return tag
}
