package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: header only", apperrors.ErrMalformedInput), http.StatusBadRequest},
		{fmt.Errorf("%w: 40 rows requested", apperrors.ErrQuotaExhausted), http.StatusTooManyRequests},
		{apperrors.ErrSessionNotFound, http.StatusNotFound},
		{apperrors.ErrSessionExists, http.StatusConflict},
		{fmt.Errorf("%w: exec: not found", apperrors.ErrWorkerSpawnFailed), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: connection refused", apperrors.ErrPersistenceUnavailable), http.StatusServiceUnavailable},
		{apperrors.ErrShuttingDown, http.StatusServiceUnavailable},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestParsePositiveInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := parsePositiveInt(" 42 ")
		if err != nil || got != 42 {
			t.Fatalf("parsePositiveInt valid = (%d,%v), want (42,nil)", got, err)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		if _, err := parsePositiveInt("not-an-int"); err == nil {
			t.Fatalf("parsePositiveInt should error for invalid input")
		}
	})
	t.Run("trailing garbage", func(t *testing.T) {
		for _, in := range []string{"12abc", "7 8", "3.5"} {
			if _, err := parsePositiveInt(in); err == nil {
				t.Fatalf("parsePositiveInt(%q) should error", in)
			}
		}
	})
	t.Run("zero", func(t *testing.T) {
		if _, err := parsePositiveInt("0"); err == nil {
			t.Fatalf("parsePositiveInt should reject zero")
		}
	})
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "s-1", "s-2"); got != "s-1" {
		t.Fatalf("firstNonEmpty = %q, want s-1", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("firstNonEmpty() = %q, want empty", got)
	}
}
