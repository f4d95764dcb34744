package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

var errSample = New(KindConflict, "ConcurrentUpdate", "sample: concurrent update")

func TestWrappedErrorKeepsClassification(t *testing.T) {
	err := fmt.Errorf("%w: handover h-1", errSample)
	if !errors.Is(err, errSample) {
		t.Fatalf("expected errors.Is to match sentinel")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("kind mismatch: %s", KindOf(err))
	}
	if CodeOf(err) != "ConcurrentUpdate" {
		t.Fatalf("code mismatch: %s", CodeOf(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected conflict to be retryable")
	}
	body := BodyOf(err)
	if body.Error.Message != "sample: concurrent update: handover h-1" {
		t.Fatalf("unexpected message: %q", body.Error.Message)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(KindValidation, "X", "x"), http.StatusUnprocessableEntity},
		{New(KindState, "X", "x"), http.StatusConflict},
		{errSample, http.StatusConflict},
		{New(KindNotFound, "X", "x"), http.StatusNotFound},
		{New(KindUnauthorized, "X", "x"), http.StatusUnauthorized},
		{New(KindForbidden, "X", "x"), http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("status for %v: got %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestUnclassifiedErrorHidesText(t *testing.T) {
	body := BodyOf(errors.New("pq: connection refused"))
	if body.Error.Code != "Internal" || body.Error.Message != "internal error" {
		t.Fatalf("unexpected body: %+v", body)
	}
}
