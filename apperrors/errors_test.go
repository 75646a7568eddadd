package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	wrapped := ErrCollaboratorUnavailable.Wrap(errors.New("smtp: dial timeout"))

	assert.True(t, errors.Is(wrapped, ErrCollaboratorUnavailable))
	assert.False(t, errors.Is(wrapped, ErrUnknownLoan))
	assert.Contains(t, wrapped.Error(), "smtp: dial timeout")

	outer := fmt.Errorf("send otp: %w", wrapped)
	assert.True(t, errors.Is(outer, ErrCollaboratorUnavailable))
}

func TestDomainError_WithMessageKeepsCode(t *testing.T) {
	err := ErrAlreadyFinalized.WithMessage("loan 7 is approved")

	assert.True(t, errors.Is(err, ErrAlreadyFinalized))
	assert.Equal(t, "loan 7 is approved", err.Error())
	assert.Equal(t, "loan application already has a final decision", ErrAlreadyFinalized.Message)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", ErrInvalidAmount, http.StatusBadRequest},
		{"precondition", ErrAlreadyVerified, http.StatusConflict},
		{"expired", ErrOTPExpired, http.StatusGone},
		{"collaborator", ErrCollaboratorUnavailable, http.StatusServiceUnavailable},
		{"unauthorized", ErrInvalidCredentials, http.StatusUnauthorized},
		{"not found", ErrUnknownSession, http.StatusNotFound},
		{"wrapped", fmt.Errorf("apply: %w", ErrUnknownLoan), http.StatusConflict},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
