package harness

import "github.com/roach88/envgraph/internal/envtree"

// StepResult records what one step did.
type StepResult struct {
	Step    int    `json:"step"`
	Kind    string `json:"kind"` // "snapshot", "message" or "confirm"
	Seq     int64  `json:"seq,omitempty"`
	Token   string `json:"token,omitempty"`
	Outcome string `json:"outcome"`

	Created []string `json:"created,omitempty"`
	Updated []string `json:"updated,omitempty"`
	Deleted []string `json:"deleted,omitempty"`

	EdgesAdded   int `json:"edges_added"`
	EdgesRemoved int `json:"edges_removed"`

	// Warnings holds warning codes in the order they were raised.
	Warnings []string `json:"warnings,omitempty"`

	// Cycle is the reported cycle path of a rejected pass.
	Cycle []string `json:"cycle,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion holds.
	Pass bool `json:"pass"`

	// Steps holds one entry per scenario step.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Tree is the final committed tree.
	Tree *envtree.Tree `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
