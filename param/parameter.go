// Package param implements the typed parameter and job model: parsing a
// Job from its JSON envelope, typed accessors over its parameters, and
// the filesystem requirements check.
package param

import "encoding/json"

// Kind discriminates the recognized parameter value types. A Parameter may
// declare more than one acceptable Kind; Parameter.Kinds preserves that union and
// resolution happens at access time against the stored Value.
type Kind string

const (
	KindString         Kind = "string"
	KindInteger         Kind = "integer"
	KindBoolean         Kind = "boolean"
	KindArrayOfStrings  Kind = "array_of_strings"
	KindCredential      Kind = "credential"
	KindRequirements    Kind = "requirements"
)

// Requirements is the structured value of a KindRequirements parameter.
type Requirements struct {
	Paths []string `json:"paths"`
}

// Parameter is a single named input bound to a job.
type Parameter struct {
	ID       string          `json:"id"`
	Kinds    []Kind          `json:"type"`
	Required bool            `json:"required,omitempty"`
	Default  json.RawMessage `json:"default,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`

	// Store is carried through verbatim from the wire envelope. The
	// original SDK reserves it for non-request parameter stores; CORE
	// never reads it but must round-trip it (P2).
	Store string `json:"store,omitempty"`
}

// rawParameter mirrors Parameter's wire shape but keeps "type" untyped so a
// single value (the common case) or an array (the kind-list case) both
// unmarshal cleanly.
type rawParameter struct {
	ID       string          `json:"id"`
	Type     json.RawMessage `json:"type"`
	Required bool            `json:"required,omitempty"`
	Default  json.RawMessage `json:"default,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Store    string          `json:"store,omitempty"`
}

// UnmarshalJSON accepts both `"type": "string"` and `"type": ["string", "credential"]`.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	var raw rawParameter
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == "" || len(raw.Type) == 0 {
		return errMissingField
	}

	var kinds []Kind
	var single string
	if err := json.Unmarshal(raw.Type, &single); err == nil {
		kinds = []Kind{Kind(single)}
	} else {
		var list []string
		if err := json.Unmarshal(raw.Type, &list); err != nil {
			return errMissingField
		}
		for _, k := range list {
			kinds = append(kinds, Kind(k))
		}
	}

	p.ID = raw.ID
	p.Kinds = kinds
	p.Required = raw.Required
	p.Default = raw.Default
	p.Value = raw.Value
	p.Store = raw.Store
	return nil
}

// MarshalJSON re-emits the single-kind shape when exactly one kind is
// declared (the overwhelmingly common case) and the list shape otherwise,
// so a parse-then-serialize round trip is stable (P2).
func (p Parameter) MarshalJSON() ([]byte, error) {
	var typeField interface{}
	if len(p.Kinds) == 1 {
		typeField = p.Kinds[0]
	} else {
		typeField = p.Kinds
	}
	out := struct {
		ID       string          `json:"id"`
		Type     interface{}     `json:"type"`
		Required bool            `json:"required,omitempty"`
		Default  json.RawMessage `json:"default,omitempty"`
		Value    json.RawMessage `json:"value,omitempty"`
		Store    string          `json:"store,omitempty"`
	}{p.ID, typeField, p.Required, p.Default, p.Value, p.Store}
	return json.Marshal(out)
}

// hasKind reports whether k is among the parameter's declared kinds.
func (p Parameter) hasKind(k Kind) bool {
	for _, candidate := range p.Kinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// effective returns the raw bytes to decode: Value if present, else
// Default. Returns nil, false if neither is set.
func (p Parameter) effective() (json.RawMessage, bool) {
	if len(p.Value) > 0 {
		return p.Value, true
	}
	if len(p.Default) > 0 {
		return p.Default, true
	}
	return nil, false
}

var errMissingField = &fieldError{"parameter entry missing id/type/value"}

type fieldError struct{ msg string }

func (e *fieldError) Error() string { return e.msg }
