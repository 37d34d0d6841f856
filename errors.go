package architect

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Resolution errors.
	ErrJobDoesNotExist    = errors.New("architect: job does not exist")
	ErrBuilderNotFound    = errors.New("architect: builder not found")
	ErrInvalidBuilderName = errors.New("architect: invalid builder name")
	ErrInvalidTarget      = errors.New("architect: invalid target")
	ErrNoHost             = errors.New("architect: no host configured")

	// Validation errors.
	ErrArgumentSchemaValidation       = errors.New("architect: argument failed schema validation")
	ErrInboundMessageSchemaValidation = errors.New("architect: inbound message failed schema validation")
	ErrOutputSchemaValidation         = errors.New("architect: output failed schema validation")
	ErrChannelMessageSchemaValidation = errors.New("architect: channel message failed schema validation")

	// State errors.
	ErrJobFinished = errors.New("architect: job finished")
	ErrJobStopped  = errors.New("architect: job stopped before it started")

	// Store errors.
	ErrRunNotFound = errors.New("architect: run not found")
)

// SchemaValidationError reports a value rejected by a job schema. Kind is one
// of the schema validation sentinels and is returned by Unwrap, so callers can
// test the failing stage with errors.Is.
type SchemaValidationError struct {
	Kind    error
	JobName string
	Errors  []string
}

// NewSchemaValidationError builds a SchemaValidationError for the given stage.
func NewSchemaValidationError(kind error, jobName string, errs []string) *SchemaValidationError {
	return &SchemaValidationError{Kind: kind, JobName: jobName, Errors: errs}
}

func (e *SchemaValidationError) Error() string {
	msg := fmt.Sprintf("%v (job %q)", e.Kind, e.JobName)
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return msg
}

func (e *SchemaValidationError) Unwrap() error { return e.Kind }

// JobDoesNotExist returns an error wrapping ErrJobDoesNotExist for name.
func JobDoesNotExist(name string) error {
	return fmt.Errorf("%w: %q", ErrJobDoesNotExist, name)
}
