package extraction

import "fmt"

// MalformedResponseError means the gateway answer was not a JSON object.
type MalformedResponseError struct {
	Schema string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed extraction response: %v", e.Schema, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// SchemaValidationError names the first required field that was missing or
// could not be coerced to its declared type.
type SchemaValidationError struct {
	Schema string
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s: field %s %s", e.Schema, e.Field, e.Reason)
}
