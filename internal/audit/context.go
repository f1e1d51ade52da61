package audit

import "context"

// RequestMeta is the ambient metadata of the inbound request a mutation ran
// under. HTTP middleware resolves it once and attaches it to the request
// context; background-triggered mutations have none, and that is fine.
type RequestMeta struct {
	IPAddress     string
	UserAgent     string
	Method        string
	Path          string
	CorrelationID string
}

type metaKey struct{}

func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func MetaFromContext(ctx context.Context) (RequestMeta, bool) {
	m, ok := ctx.Value(metaKey{}).(RequestMeta)
	return m, ok
}
