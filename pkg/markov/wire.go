package markov

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"
)

// wireToken is a token as written to JSON by the stores and Export. Valid
// UTF-8 is written as a plain string. Any other token is written as
// {"bytes":"<base64>"}, since a JSON string would replace its invalid bytes.
type wireToken string

type wireBytes struct {
	Bytes []byte `json:"bytes"`
}

func (t wireToken) MarshalJSON() ([]byte, error) {
	if utf8.ValidString(string(t)) {
		return json.Marshal(string(t))
	}
	return json.Marshal(wireBytes{Bytes: []byte(t)})
}

func (t *wireToken) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return errors.New("token is null")
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = wireToken(s)
		return nil
	}

	var raw struct {
		Bytes *[]byte `json:"bytes"`
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&raw); err != nil {
		return errors.New(`token must be a string or {"bytes": "<base64>"}`)
	}
	if raw.Bytes == nil {
		return errors.New("token object has no bytes")
	}
	*t = wireToken(*raw.Bytes)
	return nil
}

func toWire(tokens []string) []wireToken {
	out := make([]wireToken, len(tokens))
	for i, token := range tokens {
		out[i] = wireToken(token)
	}
	return out
}

func fromWire(tokens []wireToken) []string {
	out := make([]string, len(tokens))
	for i, token := range tokens {
		out[i] = string(token)
	}
	return out
}
