package soql

// TranslationError describes a translation failure. Code carries the HTTP
// status the API layer should respond with.
type TranslationError struct {
	Code    int
	Message string
	Err     error
}

func (e *TranslationError) Error() string {
	return e.Message
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}
