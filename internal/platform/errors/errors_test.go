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

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ValidationError("bad", nil), http.StatusBadRequest},
		{NotFoundError("missing"), http.StatusNotFound},
		{InternalError("boom", nil), http.StatusInternalServerError},
		{ExternalError("store down", nil), http.StatusBadGateway},
		{&Error{Type: "unknown"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ExternalError("connection registry unavailable", cause)

	assert.Equal(t, "external: connection registry unavailable: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "validation: bad", ValidationError("bad", nil).Error())
}

func TestAsStructuredError_Nil(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))
}

func TestAsStructuredError_PassesThroughWrapped(t *testing.T) {
	original := NotFoundError("connection not found").WithContext("connection_id", "abc")
	wrapped := fmt.Errorf("handler: %w", original)

	got := AsStructuredError(wrapped)
	require.Same(t, original, got)
	assert.Equal(t, "abc", got.Context["connection_id"])
}

func TestAsStructuredError_MapsDomainSentinels(t *testing.T) {
	malformed := fmt.Errorf("%w: message field missing", domain.ErrMalformedInput)
	assert.Equal(t, TypeValidation, AsStructuredError(malformed).Type)

	unavailable := fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, errors.New("timeout"))
	got := AsStructuredError(unavailable)
	assert.Equal(t, TypeExternal, got.Type)
	assert.Equal(t, http.StatusBadGateway, got.HTTPStatus())

	other := AsStructuredError(errors.New("boom"))
	assert.Equal(t, TypeInternal, other.Type)
	assert.Equal(t, "internal server error", other.Message)
}

func TestToResponse(t *testing.T) {
	resp := ValidationError("message is required", nil).WithContext("field", "message").ToResponse()

	assert.Equal(t, "message is required", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, "message", resp.Context["field"])
}
