package testutil

import (
	"encoding/json"
	"testing"
)

// Snapshot builds snapshot documents in the wire format the execution engine
// sends. Methods return the builder for chaining.
type Snapshot struct {
	entries map[string]any
}

// NewSnapshot creates an empty snapshot builder.
func NewSnapshot() *Snapshot {
	return &Snapshot{entries: make(map[string]any)}
}

// Var adds a plain variable.
func (s *Snapshot) Var(name, val, typ string) *Snapshot {
	s.entries[name] = map[string]any{"name": name, "val": val, "type": typ}
	return s
}

// Def adds a definition with its expression and current value.
func (s *Snapshot) Def(name, exp, val string) *Snapshot {
	s.entries[name] = map[string]any{"name": name, "val": val, "type": "int", "exp": exp, "keyword": "def"}
	return s
}

// Action adds an action definition.
func (s *Snapshot) Action(name, exp string) *Snapshot {
	s.entries[name] = map[string]any{"name": name, "val": "", "type": "action", "exp": exp, "keyword": "def"}
	return s
}

// HTML adds an HTML fragment.
func (s *Snapshot) HTML(name, exp string) *Snapshot {
	s.entries[name] = map[string]any{"name": name, "val": "", "type": "html", "exp": exp, "keyword": "def"}
	return s
}

// Table adds a table. typ is the column spec, e.g. "array[{a:int}]", and val
// the row literal, e.g. "table[{a:1}]".
func (s *Snapshot) Table(name, typ, val string) *Snapshot {
	s.entries[name] = map[string]any{"name": name, "val": val, "type": typ}
	return s
}

// Module adds a module, optionally carrying a nested snapshot whose names are
// relative to the module.
func (s *Snapshot) Module(name string, nested *Snapshot) *Snapshot {
	entry := map[string]any{"name": name, "val": "", "type": "module"}
	if nested != nil {
		entry["commands"] = nested.entries
	}
	s.entries[name] = entry
	return s
}

// Delete adds a delete request.
func (s *Snapshot) Delete(name string) *Snapshot {
	s.entries[name] = map[string]any{"name": name, "operation": "delete"}
	return s
}

// Internal adds an engine-internal entry that must be skipped.
func (s *Snapshot) Internal(name string) *Snapshot {
	s.entries[name] = map[string]any{"name": name, "val": "", "type": "$internal"}
	return s
}

// Raw adds an arbitrary entry.
func (s *Snapshot) Raw(key string, entry any) *Snapshot {
	s.entries[key] = entry
	return s
}

// JSON encodes the snapshot.
func (s *Snapshot) JSON(t testing.TB) []byte {
	t.Helper()
	data, err := json.Marshal(s.entries)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	return data
}

// Message wraps the snapshot in a server message envelope. An empty errText
// sends a null error.
func (s *Snapshot) Message(t testing.TB, errText string) []byte {
	t.Helper()
	env := map[string]any{"env": string(s.JSON(t)), "err": nil}
	if errText != "" {
		env["err"] = errText
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return data
}
