package kernel

// ContextKey is the type used for values stored in request context.
type ContextKey string

const (
	// ClientContextKey holds the authenticated tenant application for the
	// current internal request.
	ClientContextKey ContextKey = "client_app"

	// RequestIDKey holds the request correlation ID.
	RequestIDKey ContextKey = "request_id"
)
