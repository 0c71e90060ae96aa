package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/envgraph/internal/infer"
	"github.com/roach88/envgraph/internal/ir"
)

// Flatten walks the snapshot depth first and produces one Record per entry,
// including entries nested in module commands. Nested names are relative to
// their module and are qualified here. Engine-internal entries are skipped.
//
// Records are emitted in pre-order: a module's record precedes its nested
// records, and siblings follow key order.
func (d *Decoder) Flatten(snap *Snapshot) ([]ir.Record, []error) {
	warnings := append([]error(nil), snap.Warnings...)
	var records []ir.Record
	d.flatten(snap.Entries, nil, &records, &warnings)
	return records, warnings
}

func (d *Decoder) flatten(entries []Entry, parent []string, out *[]ir.Record, warnings *[]error) {
	for _, e := range entries {
		if IsInternal(e.Descriptor) {
			continue
		}

		rec, err := BuildRecord(e.Descriptor, parent)
		if err != nil {
			var me *MalformedError
			if errors.As(err, &me) {
				me.Key = e.Key
			}
			*warnings = append(*warnings, err)
		}
		*out = append(*out, rec)

		if rec.Kind != ir.KindModule || rec.Delete || !e.Descriptor.HasCommands() {
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(e.Descriptor.Commands, &nested); err != nil {
			*warnings = append(*warnings, &MalformedError{
				Key:     e.Key,
				Field:   "commands",
				Message: fmt.Sprintf("nested snapshot: %v", err),
			})
			continue
		}
		children, childWarnings := d.decodeEntries(nested)
		*warnings = append(*warnings, childWarnings...)
		d.flatten(children, ir.ModulePath(rec.ID), out, warnings)
	}
}

// BuildRecord converts one descriptor into a Record located under the given
// module path. The returned error, if any, is a *MalformedError describing
// a structured field that could not be parsed; the Record is still usable.
func BuildRecord(d Descriptor, parent []string) (ir.Record, error) {
	label, rel := ir.ParseQualified(d.Name)
	path := make([]string, 0, len(parent)+len(rel))
	path = append(path, parent...)
	path = append(path, rel...)

	rec := ir.Record{
		ID:         ir.QualifiedID(label, path),
		Label:      label,
		ParentPath: path,
		Kind:       Classify(d),
		Delete:     d.IsDelete(),
		Value:      d.Val,
		Expression: d.Expression(),
		TypeTag:    d.Type,
	}
	if len(path) == 0 {
		rec.ParentPath = nil
	}
	if rec.Delete {
		return rec, nil
	}

	if len(d.Params) > 0 {
		rec.Params = make(map[string]string, len(d.Params))
		for k, v := range d.Params {
			rec.Params[k] = v
		}
	}

	for _, ref := range infer.Identifiers(rec.Expression) {
		if ref == label {
			continue
		}
		rec.DependsOn = append(rec.DependsOn, ir.QualifiedID(ref, rec.ParentPath))
	}

	if rec.Kind == ir.KindModule {
		return rec, nil
	}

	v, err := ParseValue(d.Type, d.Val)
	rec.Value = v.Text
	rec.Columns = v.Columns
	rec.Rows = v.Rows
	rec.Parsed = v.Parsed
	return rec, err
}
