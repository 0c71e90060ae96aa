package snapshot

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// Validator checks raw snapshot entries against the embedded CUE schema.
//
// A Validator holds a CUE context and is not safe for concurrent use.
type Validator struct {
	ctx        *cue.Context
	descriptor cue.Value
	message    cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}
	return &Validator{
		ctx:        ctx,
		descriptor: schema.LookupPath(cue.ParsePath("#Descriptor")),
		message:    schema.LookupPath(cue.ParsePath("#Message")),
	}, nil
}

// ValidateDescriptor checks one raw JSON descriptor.
func (v *Validator) ValidateDescriptor(raw []byte) error {
	return v.validate(v.descriptor, raw)
}

// ValidateMessage checks a raw server envelope.
func (v *Validator) ValidateMessage(raw []byte) error {
	return v.validate(v.message, raw)
}

func (v *Validator) validate(schema cue.Value, raw []byte) error {
	entry := v.ctx.CompileBytes(raw, cue.Filename("entry.json"))
	if err := entry.Err(); err != nil {
		return firstCUEError(err)
	}
	unified := schema.Unify(entry)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return firstCUEError(err)
	}
	return nil
}

// firstCUEError reduces a CUE error list to its first entry.
func firstCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return errs[0]
}
