package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("project %s not found", "project_001")))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("wrapped: %w", Conflict("stale version"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.True(t, Is(Validation("bad"), KindValidation))
	assert.False(t, Is(nil, KindValidation))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		NotFound("x"):                     http.StatusNotFound,
		Conflict("x"):                     http.StatusConflict,
		Validation("x"):                   http.StatusBadRequest,
		Unauthorized("x"):                 http.StatusUnauthorized,
		Forbidden("x"):                    http.StatusForbidden,
		TooManyRequests("x"):              http.StatusTooManyRequests,
		Internal(errors.New("disk"), "x"): http.StatusInternalServerError,
		errors.New("plain"):               http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := Internal(errors.New("open /var/data: permission denied"), "Failed to save project")
	assert.Equal(t, "Failed to save project", PublicMessage(err))
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("raw")))
	assert.Contains(t, err.Error(), "permission denied")
	assert.ErrorIs(t, fmt.Errorf("ctx: %w", err), err)
}
