package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pscheid92/fanout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := ValidationError("invalid input")

	assert.Equal(t, TypeValidation, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Equal(t, "validation: invalid input", err.Error())
}

func TestUnavailableError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := UnavailableError("registry down", cause)

	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus())
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, errors.Is(err, cause))
}

func TestInternalErrorWithoutCause(t *testing.T) {
	err := InternalError("something went wrong", nil)

	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestWithField(t *testing.T) {
	err := ValidationError("bad event").
		WithField("route_key", "$default").
		WithField("connection_id", "c1")

	assert.Len(t, err.Context, 2)
	assert.Equal(t, "$default", err.Context["route_key"])
}

func TestWithFieldNilMap(t *testing.T) {
	err := &Error{Type: TypeValidation, Message: "test"}
	err = err.WithField("key", "value")

	assert.Equal(t, "value", err.Context["key"])
}

func TestToResponse(t *testing.T) {
	resp := ValidationError("missing body").WithField("field", "body").ToResponse()

	assert.Equal(t, "missing body", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, "body", resp.Context["field"])
}

func TestAsStructuredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"malformed payload", fmt.Errorf("decode: %w", domain.ErrMalformedPayload), TypeValidation},
		{"unrecognized event", domain.ErrUnrecognizedEvent, TypeValidation},
		{"store unavailable", fmt.Errorf("%w: timeout", domain.ErrStoreUnavailable), TypeUnavailable},
		{"plain error", errors.New("boom"), TypeInternal},
		{"wrapped structured", fmt.Errorf("wrapped: %w", ValidationError("nope")), TypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsStructuredError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
		})
	}
}

func TestAsStructuredErrorWithNil(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))
}

func TestAsStructuredErrorKeepsIdentity(t *testing.T) {
	original := ValidationError("original")
	assert.Same(t, original, AsStructuredError(original))
}
