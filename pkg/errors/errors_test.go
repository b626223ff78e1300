package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("notification", nil), http.StatusNotFound},
		{"bad request", BadRequest("invalid page", nil), http.StatusBadRequest},
		{"forbidden", Forbidden("user mismatch"), http.StatusForbidden},
		{"unavailable", Unavailable("breaker open", nil), http.StatusServiceUnavailable},
		{"wrapped", fmt.Errorf("handler: %w", NotFound("connection", nil)), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("no rows")
	err := NotFound("notification", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "notification not found: no rows", err.Error())
}
