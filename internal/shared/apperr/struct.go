package apperr

type Kind string

type AppError struct {
	Kind      Kind
	PublicMsg string            // safe to show to the client
	Fields    map[string]string // per-field validation errors (optional)
	Retryable bool              // client may retry the same request
	Err       error             // internal cause, logged only
}
