package engine

// ValidationError rejects malformed input; it maps to 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

// ConflictError rejects input that clashes with existing state; it maps to 409.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }
