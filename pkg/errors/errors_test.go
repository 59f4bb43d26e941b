package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	cases := []struct {
		code   Code
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeOutOfStock, http.StatusConflict},
		{CodeSlotFull, http.StatusConflict},
		{CodeMultiStoreOrder, http.StatusUnprocessableEntity},
		{CodeInvalidTransition, http.StatusUnprocessableEntity},
		{CodePaymentProvider, http.StatusBadGateway},
		{CodeDependency, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := MetadataFor(tc.code).HTTPStatus; got != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.code, tc.status, got)
		}
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestAsUnwrapsWrappedError(t *testing.T) {
	base := New(CodeOutOfStock, "offer exhausted")
	wrapped := fmt.Errorf("creating order: %w", base)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeOutOfStock {
		t.Fatalf("unexpected code %s", typed.Code())
	}
}

func TestHasCode(t *testing.T) {
	err := Wrap(CodeInvalidTransition, fmt.Errorf("boom"), "advance order")
	if !HasCode(err, CodeInvalidTransition) {
		t.Fatal("expected HasCode to match")
	}
	if HasCode(err, CodeOutOfStock) {
		t.Fatal("unexpected match")
	}
	if HasCode(nil, CodeOutOfStock) {
		t.Fatal("nil error must not match")
	}
}

func TestWithDetailsRoundTrip(t *testing.T) {
	err := New(CodeSlotFull, "slot exhausted").WithDetails(map[string]any{"store_id": "s1"})
	details, ok := err.Details().(map[string]any)
	if !ok || details["store_id"] != "s1" {
		t.Fatalf("unexpected details: %#v", err.Details())
	}
}
