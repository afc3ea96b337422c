package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Payload is a decoded provider webhook body. Providers disagree on almost
// every field name, so handlers walk it with the typed accessors below
// instead of per-provider structs.
type Payload map[string]interface{}

func (p Payload) str(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func (p Payload) object(key string) Payload {
	if m, ok := p[key].(map[string]interface{}); ok {
		return Payload(m)
	}
	return nil
}

func (p Payload) slice(key string) []Payload {
	raw, ok := p[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]Payload, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, Payload(m))
		}
	}
	return out
}

func (p Payload) float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// canonical renders the payload with sorted keys so the JSON fallback of the
// event id stays stable across redeliveries.
func (p Payload) canonical() string {
	b, err := json.Marshal(map[string]interface{}(p))
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(p))
	}
	return string(b)
}

// ParsePayload decodes a raw JSON webhook body.
func ParsePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	return p, nil
}
