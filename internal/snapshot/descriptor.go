package snapshot

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Descriptor is one wire entry of a snapshot.
type Descriptor struct {
	Name      string            `json:"name"`
	Val       string            `json:"val"`
	Type      string            `json:"type"`
	Exp       *string           `json:"exp"`
	Keyword   string            `json:"keyword"`
	Operation *string           `json:"operation"`
	Commands  json.RawMessage   `json:"commands"`
	Params    map[string]string `json:"params"`
}

// IsDelete reports whether the entry requests removal of its node.
func (d Descriptor) IsDelete() bool {
	return d.Operation != nil && *d.Operation == "delete"
}

// Expression returns the expression text, or "" when absent.
func (d Descriptor) Expression() string {
	if d.Exp == nil {
		return ""
	}
	return *d.Exp
}

// HasCommands reports whether the entry carries a nested snapshot.
func (d Descriptor) HasCommands() bool {
	return len(d.Commands) > 0 && string(d.Commands) != "null"
}

// Entry is a descriptor together with the key it was stored under.
type Entry struct {
	Key        string
	Descriptor Descriptor
}

// Snapshot is a decoded snapshot. Entries are sorted by key so iteration
// order is deterministic.
type Snapshot struct {
	Entries []Entry

	// Warnings holds recoverable problems found while decoding, each a
	// *MalformedError.
	Warnings []error

	// EngineError is the error text reported by the execution engine in the
	// server envelope, if any.
	EngineError string
}

// MalformedError describes a descriptor that failed validation or
// structured-field parsing. It is always recovered from.
type MalformedError struct {
	Key     string
	Field   string
	Message string
}

func (e *MalformedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed descriptor %q: %s: %s", e.Key, e.Field, e.Message)
	}
	return fmt.Sprintf("malformed descriptor %q: %s", e.Key, e.Message)
}

// Decoder turns raw snapshot JSON into a Snapshot.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	validator *Validator
}

// NewDecoder creates a Decoder with the embedded schema.
func NewDecoder() (*Decoder, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Decoder{validator: v}, nil
}

// Decode parses a snapshot object. Only invalid top-level JSON is an error;
// individual entries that fail validation are decoded best-effort and
// reported in Snapshot.Warnings.
func (d *Decoder) Decode(data []byte) (*Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snap := &Snapshot{}
	snap.Entries, snap.Warnings = d.decodeEntries(raw)
	return snap, nil
}

// message is the server envelope wrapping a snapshot string.
type message struct {
	Env string  `json:"env"`
	Err *string `json:"err"`
}

// DecodeMessage parses a server envelope {"env": "<snapshot json>", "err": ...}.
// An empty env yields an empty snapshot.
func (d *Decoder) DecodeMessage(data []byte) (*Snapshot, error) {
	if err := d.validator.ValidateMessage(data); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	snap := &Snapshot{}
	if msg.Env != "" {
		decoded, err := d.Decode([]byte(msg.Env))
		if err != nil {
			return nil, err
		}
		snap = decoded
	}
	if msg.Err != nil {
		snap.EngineError = *msg.Err
	}
	return snap, nil
}

func (d *Decoder) decodeEntries(raw map[string]json.RawMessage) ([]Entry, []error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var warnings []error
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		body := raw[key]
		if err := d.validator.ValidateDescriptor(body); err != nil {
			warnings = append(warnings, &MalformedError{Key: key, Message: err.Error()})
		}
		desc, err := decodeDescriptor(body)
		if err != nil {
			warnings = append(warnings, &MalformedError{Key: key, Message: err.Error()})
			continue
		}
		if desc.Name == "" {
			desc.Name = key
		}
		entries = append(entries, Entry{Key: key, Descriptor: desc})
	}
	return entries, warnings
}

// decodeDescriptor decodes strictly and falls back to a lenient field-by-field
// decode when a field carries an unexpected JSON type.
func decodeDescriptor(body json.RawMessage) (Descriptor, error) {
	var desc Descriptor
	if err := json.Unmarshal(body, &desc); err == nil {
		return desc, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return Descriptor{}, fmt.Errorf("entry is not an object: %w", err)
	}

	desc = Descriptor{
		Name:    scalarString(fields["name"]),
		Val:     scalarString(fields["val"]),
		Type:    scalarString(fields["type"]),
		Keyword: scalarString(fields["keyword"]),
	}
	if v, ok := fields["exp"]; ok && v != nil {
		s := scalarString(v)
		desc.Exp = &s
	}
	if v, ok := fields["operation"]; ok && v != nil {
		s := scalarString(v)
		desc.Operation = &s
	}
	if v, ok := fields["commands"].(map[string]any); ok {
		desc.Commands, _ = json.Marshal(v)
	}
	if v, ok := fields["params"].(map[string]any); ok {
		desc.Params = make(map[string]string, len(v))
		for name, tag := range v {
			desc.Params[name] = scalarString(tag)
		}
	}
	return desc, nil
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
