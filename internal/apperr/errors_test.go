package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", NotFound("note", "n1"), ErrNotFound},
		{"validation", ValidationFailed("name", "name is required"), ErrValidation},
		{"conflict", Conflict("user", "auth-1"), ErrConflict},
		{"format", InvalidFormat("not an array"), ErrInvalidFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !errors.Is(wrapped, tc.want) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tc.want)
			}
		})
	}
}

func TestAppErrorMessage(t *testing.T) {
	err := NotFound("folder", "f-9")
	if err.Error() != "folder not found with id f-9" {
		t.Errorf("message = %q", err.Error())
	}
	var appErr *AppError
	if !errors.As(fmt.Errorf("wrap: %w", ValidationFailed("title", "too long")), &appErr) {
		t.Fatal("errors.As failed")
	}
	if appErr.Field != "title" {
		t.Errorf("field = %q, want title", appErr.Field)
	}
}
