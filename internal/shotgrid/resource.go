package shotgrid

import (
	"encoding/json"
	"strconv"
)

// resource is one JSON:API record as returned by the REST endpoints.
type resource struct {
	ID            int64                      `json:"id"`
	Type          string                     `json:"type"`
	Attributes    map[string]json.RawMessage `json:"attributes"`
	Relationships map[string]relationship    `json:"relationships"`
}

type relationship struct {
	Data json.RawMessage `json:"data"`
}

// view reads fields of a resource through the caller's field remapping.
type view struct {
	resource
	rename func(string) string
}

func (v view) key(field string) string {
	if v.rename == nil {
		return field
	}
	return v.rename(field)
}

func (v view) attr(field string) (json.RawMessage, bool) {
	raw, ok := v.Attributes[v.key(field)]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func (v view) has(field string) bool {
	_, ok := v.attr(field)
	return ok
}

func (v view) str(field string) string {
	raw, ok := v.attr(field)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

func (v view) int(field string) int64 {
	raw, ok := v.attr(field)
	if !ok {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		i, _ := strconv.ParseInt(s, 10, 64)
		return i
	}
	return 0
}

func (v view) relation(field string) (json.RawMessage, bool) {
	rel, ok := v.Relationships[v.key(field)]
	if !ok || len(rel.Data) == 0 || string(rel.Data) == "null" {
		return nil, false
	}
	return rel.Data, true
}

func (v view) ref(field string) *EntityRef {
	raw, ok := v.relation(field)
	if !ok {
		return nil
	}
	var ref EntityRef
	if err := json.Unmarshal(raw, &ref); err != nil || ref.ID == 0 {
		return nil
	}
	return &ref
}

func (v view) refs(field string) []EntityRef {
	raw, ok := v.relation(field)
	if !ok {
		return nil
	}
	var refs []EntityRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil
	}
	return refs
}
