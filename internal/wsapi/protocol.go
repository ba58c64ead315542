// Package wsapi implements the kernel's WebSocket control plane (spec §6.1):
// a single frame protocol of {type, id, ...params} requests and
// {type, id, ...fields} response/event frames, transported over
// gorilla/websocket and gated by a bearer JWT or API key.
package wsapi

import (
	"encoding/json"
	"fmt"
)

// envelope is the wire shape of every inbound frame: type and id are fixed,
// everything else is request-specific and decoded field-by-field from raw.
type envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	raw  map[string]json.RawMessage
}

func decodeEnvelope(data []byte) (*envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	env := &envelope{raw: raw}
	if t, ok := raw["type"]; ok {
		_ = json.Unmarshal(t, &env.Type)
	}
	if id, ok := raw["id"]; ok {
		_ = json.Unmarshal(id, &env.ID)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame missing \"type\"")
	}
	return env, nil
}

// field decodes a single named param into dst. Returns false if absent.
func (e *envelope) field(name string, dst any) bool {
	raw, ok := e.raw[name]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false
	}
	return true
}

func (e *envelope) stringField(name string) string {
	var s string
	e.field(name, &s)
	return s
}

func (e *envelope) intField(name string, def int) int {
	var n int
	if e.field(name, &n) {
		return n
	}
	return def
}

func (e *envelope) boolField(name string) bool {
	var b bool
	e.field(name, &b)
	return b
}

// frame builds a flat {type, id, ...fields} response/event payload.
func frame(typ, id string, fields map[string]any) []byte {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["type"] = typ
	out["id"] = id
	data, err := json.Marshal(out)
	if err != nil {
		data, _ = json.Marshal(map[string]any{"type": "error", "id": id, "message": err.Error()})
	}
	return data
}

func errorFrame(id string, err error) []byte {
	return frame("error", id, map[string]any{"message": err.Error()})
}
