package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := New(CodeInvalidTemplate, "template broken")
	assert.Equal(t, "[INVALID_TEMPLATE] template broken", err.Error())

	withField := err.WithField("vnfs")
	assert.Equal(t, "[INVALID_TEMPLATE] template broken (field: vnfs)", withField.Error())
	assert.Empty(t, err.Field, "WithField must not mutate the original")
}

func TestError_WrapAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeInvalidScenario, "cannot read file", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIs(t *testing.T) {
	err := Newf(CodeDuplicateSource, "duplicate source of %s at %s", "src", "A")

	assert.True(t, Is(err, CodeDuplicateSource))
	assert.False(t, Is(err, CodeFixedSource))
	assert.False(t, Is(errors.New("plain"), CodeDuplicateSource))

	// wrapped app errors are still recognized
	wrapped := fmt.Errorf("loading scenario: %w", err)
	assert.True(t, Is(wrapped, CodeDuplicateSource))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeEmptyNetwork, CodeOf(New(CodeEmptyNetwork, "no nodes")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestError_WithDetailAndSeverity(t *testing.T) {
	base := New(CodeNoCandidateNode, "nowhere to place")
	detailed := base.WithDetail("component", "vnf1").WithSeverity(SeverityWarning)

	assert.Equal(t, "vnf1", detailed.Details["component"])
	assert.Equal(t, SeverityWarning, detailed.Severity)
	assert.Equal(t, SeverityError, base.Severity)
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "critical", SeverityCritical.String())
}
