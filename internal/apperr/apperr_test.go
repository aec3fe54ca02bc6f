package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{NotFound("task"), http.StatusNotFound},
		{PermissionDenied("not a project member"), http.StatusForbidden},
		{VersionConflict(3, 5), http.StatusConflict},
		{Validation("title cannot be empty"), http.StatusBadRequest},
	}

	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.status {
			t.Errorf("%v: HTTPStatus() = %d, expected %d", tc.err, got, tc.status)
		}
	}
}

func TestKindPredicates(t *testing.T) {
	if !IsNotFound(NotFound("task")) {
		t.Error("IsNotFound should match NotFound errors")
	}
	if !IsPermissionDenied(PermissionDenied("nope")) {
		t.Error("IsPermissionDenied should match PermissionDenied errors")
	}
	if !IsVersionConflict(VersionConflict(1, 2)) {
		t.Error("IsVersionConflict should match VersionConflict errors")
	}
	if !IsValidation(Validation("bad")) {
		t.Error("IsValidation should match Validation errors")
	}
	if IsNotFound(Validation("bad")) {
		t.Error("IsNotFound should not match Validation errors")
	}
	if IsVersionConflict(errors.New("plain")) {
		t.Error("IsVersionConflict should not match untyped errors")
	}
}

func TestKindPredicates_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("mutation failed: %w", VersionConflict(2, 4))
	if !IsVersionConflict(wrapped) {
		t.Error("predicates should see through error wrapping")
	}
}

func TestVersionConflict_Message(t *testing.T) {
	err := VersionConflict(3, 7)
	want := "version conflict: expected 3, current 7"
	if err.Error() != want {
		t.Errorf("Error() = %q, expected %q", err.Error(), want)
	}
}

func TestNotFound_Message(t *testing.T) {
	if NotFound("project").Error() != "project not found" {
		t.Errorf("unexpected message: %q", NotFound("project").Error())
	}
}
