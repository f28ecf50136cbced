package worker

import (
	"errors"
	"testing"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
)

func TestParseRows(t *testing.T) {
	data := "\xEF\xBB\xBFtext,timestamp,source\n\"Lindol, grabe\",2024-01-01,Twitter\n\n,,\nflood sa Marikina,2024-01-02,Facebook\n"
	header, rows, err := ParseRows([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header[0] != "text" || len(header) != 3 {
		t.Fatalf("bad header: %q", header)
	}
	if len(rows) != 2 || rows[0][0] != "Lindol, grabe" {
		t.Fatalf("bad rows: %q", rows)
	}
}

func TestParseRowsRejectsEmptyInput(t *testing.T) {
	for name, data := range map[string]string{
		"empty":       "",
		"header only": "text,timestamp\n",
		"blank rows":  "text\n\n\n",
	} {
		if _, _, err := ParseRows([]byte(data)); !errors.Is(err, apperrors.ErrMalformedInput) {
			t.Fatalf("%s: err = %v, want ErrMalformedInput", name, err)
		}
	}
}
