package note

import "encoding/json"

// Seal is the small colored annotation a user pins on a day. It used to be an
// opaque blob; it is now validated at the boundary and only serialized to
// text at the persistence layer.
type Seal struct {
	Color string `json:"color"`
	Icon  string `json:"icon"`
	Text  string `json:"text"`
}

// EncodeSeal renders a seal for the seal_json column. nil stays NULL.
func EncodeSeal(s *Seal) (*string, error) {
	if s == nil {
		return nil, nil
	}

	b, err := json.Marshal(s)

	if err != nil {
		return nil, err
	}

	out := string(b)
	return &out, nil
}

// DecodeSeal restores a seal from its stored text form.
func DecodeSeal(raw *string) (*Seal, error) {
	if raw == nil || *raw == "" || *raw == "null" {
		return nil, nil
	}

	var s Seal

	err := json.Unmarshal([]byte(*raw), &s)

	if err != nil {
		return nil, err
	}

	return &s, nil
}
