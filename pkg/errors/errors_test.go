package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsCarryStatus(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{BadRequestError("bad"), ErrCodeBadRequest, http.StatusBadRequest},
		{ValidationError("invalid"), ErrCodeValidation, http.StatusBadRequest},
		{ForbiddenError("no"), ErrCodeForbidden, http.StatusForbidden},
		{NotMemberError(), ErrCodeForbidden, http.StatusForbidden},
		{NotFoundError("Poll"), ErrCodeNotFound, http.StatusNotFound},
		{InternalError("boom"), ErrCodeInternal, http.StatusInternalServerError},
		{DatabaseError(fmt.Errorf("conn reset")), ErrCodeDatabase, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code)
		assert.Equal(t, tc.status, tc.err.StatusCode)
	}
}

func TestNotFoundMessage(t *testing.T) {
	assert.Equal(t, "Call not found", NotFoundError("Call").Message)
}

func TestGetAppError_Wrapped(t *testing.T) {
	inner := ForbiddenError("nope")
	wrapped := fmt.Errorf("vote: %w", inner)

	appErr := GetAppError(wrapped)
	assert.Same(t, inner, appErr)
	assert.True(t, IsAppError(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeForbidden))
	assert.False(t, HasCode(wrapped, ErrCodeNotFound))
}

func TestGetAppError_PlainError(t *testing.T) {
	plain := fmt.Errorf("socket closed")

	appErr := GetAppError(plain)
	assert.Equal(t, ErrCodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	assert.ErrorIs(t, appErr, plain)
}
