package note

import (
	"encoding/json"
	"testing"
)

func TestTemperatureUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *float64
		wantErr bool
	}{
		{"number", `36.7`, ptr(36.7), false},
		{"numeric_string", `"36.7"`, ptr(36.7), false},
		{"decimal_comma", `"36,7"`, ptr(36.7), false},
		{"zero_is_absent", `0`, nil, false},
		{"empty_string", `""`, nil, false},
		{"blank_string", `"  "`, nil, false},
		{"null", `null`, nil, false},
		{"garbage", `"abc"`, nil, true},
		{"object", `{}`, nil, true},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			var temp Temperature

			err := json.Unmarshal([]byte(tt.raw), &temp)

			if tt.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			switch {
			case tt.want == nil && temp.Value != nil:
				t.Fatalf("want nil, got %v", *temp.Value)
			case tt.want != nil && (temp.Value == nil || *temp.Value != *tt.want):
				t.Fatalf("want %v, got %v", *tt.want, temp.Value)
			}
		})
	}
}

func TestTemperatureMarshal(t *testing.T) {
	raw, err := json.Marshal(Temperature{})
	if err != nil {
		t.Fatalf("marshal empty: %v", err)
	}
	if string(raw) != "null" {
		t.Fatalf("empty temp must serialize as null, got %s", raw)
	}

	raw, err = json.Marshal(Temperature{Value: ptr(36.5)})
	if err != nil {
		t.Fatalf("marshal value: %v", err)
	}
	if string(raw) != "36.5" {
		t.Fatalf("got %s, want 36.5", raw)
	}
}

func ptr(f float64) *float64 { return &f }
