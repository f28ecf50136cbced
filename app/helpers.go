package app

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
)

// statusFor maps a pipeline error onto the HTTP status the client sees.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperrors.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrSessionExists), errors.Is(err, apperrors.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrWorkerSpawnFailed), errors.Is(err, apperrors.ErrPersistenceUnavailable),
		errors.Is(err, apperrors.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// converts string to int safely
func parsePositiveInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
