package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TokenRecord is the token document returned by the refresh endpoint and
// stored under extras.token. Fields the server sends beyond the known ones are
// kept so the persisted record matches what the server returned.
type TokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	// LastUpdate is the receipt time in Unix milliseconds.
	LastUpdate int64 `json:"lastUpdate,omitempty"`

	Other map[string]json.RawMessage `json:"-"`
}

var tokenRecordFields = []string{
	"access_token",
	"refresh_token",
	"token_type",
	"expires_in",
	"scope",
	"lastUpdate",
}

func (t *TokenRecord) UnmarshalJSON(data []byte) error {
	type Alias TokenRecord
	aux := &struct {
		*Alias
		// Some servers send expires_in as a string.
		ExpiresIn json.RawMessage `json:"expires_in,omitempty"`
	}{Alias: (*Alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range tokenRecordFields {
		delete(raw, k)
	}
	t.ExpiresIn = 0
	if len(aux.ExpiresIn) > 0 {
		if n, ok := parseSeconds(aux.ExpiresIn); ok {
			t.ExpiresIn = n
		} else {
			raw["expires_in"] = aux.ExpiresIn
		}
	}
	if len(raw) > 0 {
		t.Other = raw
	} else {
		t.Other = nil
	}
	return nil
}

func (t TokenRecord) MarshalJSON() ([]byte, error) {
	type Alias TokenRecord
	known, err := json.Marshal(Alias(t))
	if err != nil {
		return nil, err
	}
	if len(t.Other) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(t.Other)+len(tokenRecordFields))
	for k, v := range t.Other {
		merged[k] = v
	}
	var knownFields map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownFields); err != nil {
		return nil, fmt.Errorf("failed to merge token fields: %w", err)
	}
	for k, v := range knownFields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// parseSeconds accepts a JSON number or a numeric string.
func parseSeconds(v json.RawMessage) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if i, err := strconv.Atoi(n.String()); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
		return 0, false
	}
	var str string
	if err := json.Unmarshal(v, &str); err != nil {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(str))
	return i, err == nil
}

// Clone returns a deep copy of the record.
func (t *TokenRecord) Clone() *TokenRecord {
	if t == nil {
		return nil
	}
	c := *t
	if t.Other != nil {
		c.Other = make(map[string]json.RawMessage, len(t.Other))
		for k, v := range t.Other {
			c.Other[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// Valid reports whether the record carries both tokens.
func (t *TokenRecord) Valid() bool {
	return t != nil && t.AccessToken != "" && t.RefreshToken != ""
}
