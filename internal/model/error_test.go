package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStatusCode(t *testing.T) {
	tt := []struct {
		err  error
		want int
	}{
		{ErrValidation("bad"), http.StatusBadRequest},
		{ErrUnauthorized("who"), http.StatusUnauthorized},
		{ErrForbidden("no"), http.StatusForbidden},
		{ErrNotFound("gone"), http.StatusNotFound},
		{ErrConflict("taken"), http.StatusConflict},
		{ErrInternal(errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", ErrForbidden("no")), http.StatusForbidden},
	}

	for _, test := range tt {
		t.Run(test.err.Error(), func(t *testing.T) {
			assert.Equal(t, test.want, StatusCode(test.err))
		})
	}
}

func TestErrInternalHidesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrInternal(cause)

	assert.Equal(t, "internal server error", err.Message)
	assert.True(t, errors.Is(err, cause))
}
