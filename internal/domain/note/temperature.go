package note

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Temperature tolerates the loose input the UI sends: a number, a numeric
// string, an empty string, or null. Anything empty/falsy stores as NULL,
// never as zero.
type Temperature struct {
	Value *float64
}

func (t *Temperature) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Value = nil
		return nil
	}

	if data[0] == '"' {
		var s string

		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		s = strings.TrimSpace(s)

		if s == "" {
			t.Value = nil
			return nil
		}

		// the UI locale sometimes sends a decimal comma
		s = strings.ReplaceAll(s, ",", ".")

		f, err := strconv.ParseFloat(s, 64)

		if err != nil {
			return err
		}

		t.Value = &f
		return nil
	}

	var f float64

	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	if f == 0 {
		t.Value = nil
		return nil
	}

	t.Value = &f
	return nil
}

func (t Temperature) MarshalJSON() ([]byte, error) {
	if t.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*t.Value)
}
