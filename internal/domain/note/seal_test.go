package note

import "testing"

func TestSealEncodeDecode(t *testing.T) {
	enc, err := EncodeSeal(&Seal{Color: "red", Icon: "drop", Text: "regra"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if enc == nil {
		t.Fatal("encoded seal must not be nil")
	}

	dec, err := DecodeSeal(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec == nil || dec.Color != "red" || dec.Icon != "drop" || dec.Text != "regra" {
		t.Fatalf("round trip lost data: %+v", dec)
	}
}

func TestSealNilAndLegacyValues(t *testing.T) {
	enc, err := EncodeSeal(nil)
	if err != nil || enc != nil {
		t.Fatalf("nil seal must encode to NULL, got %v err %v", enc, err)
	}

	// old rows stored "" or "null" in the column
	for _, raw := range []string{"", "null"} {
		raw := raw
		dec, err := DecodeSeal(&raw)
		if err != nil || dec != nil {
			t.Fatalf("legacy %q must decode to nil, got %+v err %v", raw, dec, err)
		}
	}

	bad := "{not json"
	if _, err := DecodeSeal(&bad); err == nil {
		t.Fatal("corrupt stored seal must error")
	}
}
