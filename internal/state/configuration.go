package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvcrn/bggeo-token-refresh/internal/auth"
)

// AuthorizationHeader is the header carrying the bearer credential.
const AuthorizationHeader = "Authorization"

// Configuration is the engine's runtime configuration. Only headers and
// extras are modelled; every other key the engine stores is carried through
// untouched.
type Configuration struct {
	Headers map[string]string
	Extras  Extras

	// rawHeaders keeps header values that are not JSON strings.
	rawHeaders map[string]json.RawMessage
	other      map[string]json.RawMessage
}

// Extras holds the refresh-related keys of the engine's extras object.
type Extras struct {
	RefreshURL string
	Token      *auth.TokenRecord

	other map[string]json.RawMessage
}

// Authorization returns the Authorization header value, matching the name
// case-insensitively.
func (c *Configuration) Authorization() (string, bool) {
	for k, v := range c.Headers {
		if strings.EqualFold(k, AuthorizationHeader) {
			return v, true
		}
	}
	return "", false
}

// SetBearer replaces every Authorization header variant with a single
// "Bearer <token>" entry.
func (c *Configuration) SetBearer(accessToken string) {
	if c.Headers == nil {
		c.Headers = make(map[string]string, 1)
	}
	for k := range c.Headers {
		if strings.EqualFold(k, AuthorizationHeader) {
			delete(c.Headers, k)
		}
	}
	for k := range c.rawHeaders {
		if strings.EqualFold(k, AuthorizationHeader) {
			delete(c.rawHeaders, k)
		}
	}
	c.Headers[AuthorizationHeader] = "Bearer " + accessToken
}

// Clone returns a deep copy.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}
	out := &Configuration{
		Headers: make(map[string]string, len(c.Headers)),
		Extras: Extras{
			RefreshURL: c.Extras.RefreshURL,
			Token:      c.Extras.Token.Clone(),
			other:      cloneRaw(c.Extras.other),
		},
		rawHeaders: cloneRaw(c.rawHeaders),
		other:      cloneRaw(c.other),
	}
	for k, v := range c.Headers {
		out.Headers[k] = v
	}
	return out
}

func (c *Configuration) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Headers = nil
	c.rawHeaders = nil
	c.Extras = Extras{}
	if h, ok := raw["headers"]; ok {
		if err := c.decodeHeaders(h); err != nil {
			return fmt.Errorf("failed to parse headers: %w", err)
		}
		delete(raw, "headers")
	}
	if e, ok := raw["extras"]; ok {
		if err := json.Unmarshal(e, &c.Extras); err != nil {
			return fmt.Errorf("failed to parse extras: %w", err)
		}
		delete(raw, "extras")
	}
	c.other = nilIfEmpty(raw)
	return nil
}

func (c Configuration) MarshalJSON() ([]byte, error) {
	out := cloneRaw(c.other)
	if out == nil {
		out = make(map[string]json.RawMessage, 2)
	}
	headers := cloneRaw(c.rawHeaders)
	if headers == nil {
		headers = make(map[string]json.RawMessage, len(c.Headers))
	}
	for k, v := range c.Headers {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		headers[k] = b
	}
	h, err := json.Marshal(headers)
	if err != nil {
		return nil, err
	}
	e, err := json.Marshal(c.Extras)
	if err != nil {
		return nil, err
	}
	out["headers"] = h
	out["extras"] = e
	return json.Marshal(out)
}

// decodeHeaders splits the headers object into string values and raw
// values of any other JSON type.
func (c *Configuration) decodeHeaders(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	c.Headers = make(map[string]string, len(raw))
	for k, v := range raw {
		var str string
		if !bytes.Equal(bytes.TrimSpace(v), []byte("null")) && json.Unmarshal(v, &str) == nil {
			c.Headers[k] = str
			continue
		}
		if c.rawHeaders == nil {
			c.rawHeaders = make(map[string]json.RawMessage)
		}
		c.rawHeaders[k] = v
	}
	return nil
}

func (e *Extras) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.RefreshURL = ""
	e.Token = nil
	if u, ok := raw["refreshUrl"]; ok {
		// The engine stores null for unset extras.
		if string(u) != "null" {
			if err := json.Unmarshal(u, &e.RefreshURL); err != nil {
				return fmt.Errorf("failed to parse refreshUrl: %w", err)
			}
		}
		delete(raw, "refreshUrl")
	}
	if t, ok := raw["token"]; ok {
		if string(t) != "null" {
			e.Token = &auth.TokenRecord{}
			if err := json.Unmarshal(t, e.Token); err != nil {
				return fmt.Errorf("failed to parse token: %w", err)
			}
		}
		delete(raw, "token")
	}
	e.other = nilIfEmpty(raw)
	return nil
}

func (e Extras) MarshalJSON() ([]byte, error) {
	out := cloneRaw(e.other)
	if out == nil {
		out = make(map[string]json.RawMessage, 2)
	}
	if e.RefreshURL != "" {
		u, err := json.Marshal(e.RefreshURL)
		if err != nil {
			return nil, err
		}
		out["refreshUrl"] = u
	}
	if e.Token != nil {
		t, err := json.Marshal(e.Token)
		if err != nil {
			return nil, err
		}
		out["token"] = t
	}
	return json.Marshal(out)
}

func cloneRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func nilIfEmpty(m map[string]json.RawMessage) map[string]json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	return m
}

// Decode parses a stored configuration document.
func Decode(data []byte) (*Configuration, error) {
	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

// Encode serialises a configuration for storage.
func Encode(cfg *Configuration) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return data, nil
}
