package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed", New(InvalidMedia, "bad"), InvalidMedia},
		{"wrapped", fmt.Errorf("outer: %w", New(Busy, "full")), Busy},
		{"cancelled", context.Canceled, Cancelled},
		{"deadline", context.DeadlineExceeded, Timeout},
		{"unknown", errors.New("boom"), Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %s, quiere %s", got, tc.want)
			}
		})
	}
}

func TestKindOfNil(t *testing.T) {
	if got := KindOf(nil); got != "" {
		t.Fatalf("KindOf(nil) = %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		InvalidInput:        http.StatusBadRequest,
		InvalidMedia:        http.StatusBadRequest,
		NotFound:            http.StatusNotFound,
		Conflict:            http.StatusConflict,
		Busy:                http.StatusTooManyRequests,
		RateLimited:         http.StatusTooManyRequests,
		ProviderUnavailable: http.StatusServiceUnavailable,
		Timeout:             http.StatusServiceUnavailable,
		Cancelled:           http.StatusInternalServerError,
		Internal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, quiere %d", kind, got, want)
		}
	}
}

func TestErrorStage(t *testing.T) {
	err := Wrap(Timeout, "transcribing", errors.New("deadline"))
	if err.Error() != "timeout [transcribing]: deadline" {
		t.Fatalf("mensaje inesperado: %s", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Fatal("Unwrap no funciona")
	}
}
