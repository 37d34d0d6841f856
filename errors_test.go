package architect_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/xraph/architect"
)

func TestSchemaValidationError(t *testing.T) {
	err := architect.NewSchemaValidationError(architect.ErrOutputSchemaValidation, "echo", []string{"#: expected number"})
	wrapped := fmt.Errorf("run: %w", err)

	if !errors.Is(wrapped, architect.ErrOutputSchemaValidation) {
		t.Error("expected errors.Is to match the validation stage")
	}
	if errors.Is(wrapped, architect.ErrArgumentSchemaValidation) {
		t.Error("unexpected match for a different stage")
	}

	var sve *architect.SchemaValidationError
	if !errors.As(wrapped, &sve) {
		t.Fatal("expected errors.As to find SchemaValidationError")
	}
	if sve.JobName != "echo" {
		t.Errorf("JobName = %q", sve.JobName)
	}
	if msg := err.Error(); !strings.Contains(msg, `"echo"`) || !strings.Contains(msg, "expected number") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestJobDoesNotExist(t *testing.T) {
	err := architect.JobDoesNotExist("missing")
	if !errors.Is(err, architect.ErrJobDoesNotExist) {
		t.Errorf("expected ErrJobDoesNotExist, got %v", err)
	}
	if !strings.Contains(err.Error(), `"missing"`) {
		t.Errorf("Error() = %q", err.Error())
	}
}
