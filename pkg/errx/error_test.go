package errx_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Abraxas-365/bifrost/pkg/errx"
)

func TestRegistryPrefixesCodes(t *testing.T) {
	reg := errx.NewRegistry("WIDGET")
	code := reg.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Widget not found")

	err := reg.New(code)
	if err.Code != "WIDGET_NOT_FOUND" {
		t.Fatalf("expected prefixed code, got %q", err.Code)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", err.HTTPStatus)
	}
}

func TestWrapPreservesExistingError(t *testing.T) {
	reg := errx.NewRegistry("WIDGET")
	code := reg.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Widget not found")
	inner := reg.New(code)

	wrapped := errx.Wrap(fmt.Errorf("loading widget: %w", inner), "outer context", errx.TypeInternal)
	if wrapped.Code != "WIDGET_NOT_FOUND" {
		t.Fatalf("wrapping must keep the original code, got %q", wrapped.Code)
	}
	if wrapped.HTTPStatus != http.StatusNotFound {
		t.Fatalf("wrapping must keep the original status, got %d", wrapped.HTTPStatus)
	}

	var target *errx.Error
	if !errors.As(wrapped, &target) {
		t.Fatal("wrapped error must unwrap to *errx.Error")
	}
}

func TestIsType(t *testing.T) {
	err := errx.NotFound("nothing here")
	if !errx.IsType(err, errx.TypeNotFound) {
		t.Fatal("expected not-found type")
	}
	if errx.IsType(err, errx.TypeConflict) {
		t.Fatal("wrong type must not match")
	}
	if errx.IsType(errors.New("plain"), errx.TypeNotFound) {
		t.Fatal("plain errors carry no type")
	}

	wrapped := fmt.Errorf("context: %w", err)
	if !errx.IsType(wrapped, errx.TypeNotFound) {
		t.Fatal("IsType must see through wrapping")
	}
}

func TestWithDetail(t *testing.T) {
	err := errx.Conflict("taken").WithDetail("field", "email")
	if err.Details["field"] != "email" {
		t.Fatalf("expected detail, got %+v", err.Details)
	}
}
