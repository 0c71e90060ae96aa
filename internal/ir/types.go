package ir

import "fmt"

// Kind is the discriminated node kind.
type Kind string

const (
	KindVariable   Kind = "Variable"
	KindDefinition Kind = "Definition"
	KindAction     Kind = "Action"
	KindTable      Kind = "Table"
	KindHTML       Kind = "HTML"
	KindModule     Kind = "Module"
)

// KindOrder is the fixed enumeration order of node kinds.
// Radial layout groups nodes in this order.
var KindOrder = []Kind{
	KindVariable,
	KindDefinition,
	KindAction,
	KindTable,
	KindHTML,
	KindModule,
}

// ParseKind converts a kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range KindOrder {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown node kind %q", s)
}

// Rank returns the position of k in KindOrder, or len(KindOrder) if unknown.
func (k Kind) Rank() int {
	for i, known := range KindOrder {
		if known == k {
			return i
		}
	}
	return len(KindOrder)
}

// EdgeKind distinguishes reference edges from action-invocation edges.
type EdgeKind string

const (
	// EdgeReference means the source's value is used in the target's expression.
	EdgeReference EdgeKind = "reference"

	// EdgeAction means the source Action node operates on the target node.
	EdgeAction EdgeKind = "action"
)

// Position is a 2D layout coordinate (top-left anchor).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Column is one typed table column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ParsedEntry is one row of a function-valued variable, rendered by the
// engine as "(param:value) -> output".
type ParsedEntry struct {
	Param  string `json:"param"`
	Value  string `json:"value"`
	Output string `json:"output"`
}

// Node is one vertex of an Environment.
type Node struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Kind     Kind     `json:"kind"`
	Position Position `json:"position"`

	// Kind-specific payload. Only the fields relevant to Kind are set.
	Value      string            `json:"value,omitempty"`
	Definition string            `json:"definition,omitempty"` // Definition / HTML expression text
	Action     string            `json:"action,omitempty"`     // Action text
	Columns    []Column          `json:"columns,omitempty"`
	Rows       []map[string]any  `json:"rows,omitempty"`
	Params     map[string]string `json:"params,omitempty"` // Module parameter spec
	Parsed     []ParsedEntry     `json:"parsed,omitempty"`
}

// Text returns the payload text scanned for references: the action text for
// Action nodes, the definition text for Definition and HTML nodes.
func (n *Node) Text() string {
	switch n.Kind {
	case KindAction:
		return n.Action
	case KindDefinition, KindHTML:
		return n.Definition
	default:
		return ""
	}
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.Columns != nil {
		c.Columns = append([]Column(nil), n.Columns...)
	}
	if n.Rows != nil {
		c.Rows = make([]map[string]any, len(n.Rows))
		for i, row := range n.Rows {
			r := make(map[string]any, len(row))
			for k, v := range row {
				r[k] = v
			}
			c.Rows[i] = r
		}
	}
	if n.Params != nil {
		c.Params = make(map[string]string, len(n.Params))
		for k, v := range n.Params {
			c.Params[k] = v
		}
	}
	if n.Parsed != nil {
		c.Parsed = append([]ParsedEntry(nil), n.Parsed...)
	}
	return &c
}

// Edge is a directed edge scoped to exactly one Environment.
type Edge struct {
	ID     string   `json:"id"`
	Kind   EdgeKind `json:"kind"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Action string   `json:"action,omitempty"` // denormalized action text for action edges
}

// NewEdge builds an edge with its deterministic id.
func NewEdge(kind EdgeKind, source, target string) Edge {
	return Edge{
		ID:     EdgeID(kind, source, target),
		Kind:   kind,
		Source: source,
		Target: target,
	}
}

// Record is one flattened, classified snapshot entry awaiting application.
type Record struct {
	ID         string   `json:"id"`          // qualified id
	Label      string   `json:"label"`       // leftmost segment
	ParentPath []string `json:"parent_path"` // module path, outermost first
	Kind       Kind     `json:"kind"`
	Delete     bool     `json:"delete,omitempty"`

	// Raw payload from the descriptor.
	Value      string            `json:"value,omitempty"`
	Expression string            `json:"expression,omitempty"`
	TypeTag    string            `json:"type_tag,omitempty"`
	Params     map[string]string `json:"params,omitempty"`

	// Structured payload derived from Value and TypeTag.
	Columns []Column         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Parsed  []ParsedEntry    `json:"parsed,omitempty"`

	// DependsOn holds the qualified ids referenced by Expression, resolved
	// within the record's own module. Filled during flattening.
	DependsOn []string `json:"depends_on,omitempty"`
}

// EnvID returns the id of the Environment that owns the record.
func (r Record) EnvID() string {
	return EnvIDForPath(r.ParentPath)
}
