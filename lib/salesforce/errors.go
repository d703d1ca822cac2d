package salesforce

import "fmt"

// APIError describes a failed interaction with the record store. Code is the
// HTTP status received (or the one the API layer should emit), ErrorCode the
// remote error identifier when one was returned.
type APIError struct {
	Code      int
	ErrorCode string
	Message   string
	Err       error
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.ErrorCode)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// SessionExpired reports whether the error means the authenticated session is
// gone and a fresh login may succeed.
func (e *APIError) SessionExpired() bool {
	return e.ErrorCode == "INVALID_SESSION_ID" || e.Code == 401
}
