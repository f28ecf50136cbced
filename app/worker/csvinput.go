package worker

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseRows splits an uploaded CSV into its header and data rows. The file
// must have a header and at least one data row.
func ParseRows(data []byte) ([]string, [][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: empty file", apperrors.ErrMalformedInput)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: header: %v", apperrors.ErrMalformedInput, err)
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedInput, err)
		}
		if isBlank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: no data rows", apperrors.ErrMalformedInput)
	}
	return header, rows, nil
}

func encodeRows(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if f != "" {
			return false
		}
	}
	return true
}
