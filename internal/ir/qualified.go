package ir

import "strings"

// RootEnvID is the id of the root Environment.
const RootEnvID = "root"

// PathSeparator joins the segments of a qualified id.
const PathSeparator = "@"

// ParseQualified splits a qualified id into its label and module path.
//
// The label is the leftmost segment; the remaining segments are the module
// path from outermost to innermost:
//
//	ParseQualified("x")      // "x", nil
//	ParseQualified("y@m@n")  // "y", ["m", "n"]  (y inside n inside m)
func ParseQualified(id string) (label string, path []string) {
	parts := strings.Split(id, PathSeparator)
	label = parts[0]
	if len(parts) > 1 {
		path = parts[1:]
	}
	return label, path
}

// QualifiedID builds the qualified id for label inside the module path.
func QualifiedID(label string, path []string) string {
	if len(path) == 0 {
		return label
	}
	return label + PathSeparator + strings.Join(path, PathSeparator)
}

// EnvIDForPath returns the id of the Environment owned by the innermost
// module of path. The Environment id equals the owning Module node's id.
func EnvIDForPath(path []string) string {
	if len(path) == 0 {
		return RootEnvID
	}
	last := len(path) - 1
	return QualifiedID(path[last], path[:last])
}

// EnvIDOf returns the id of the Environment a node with the given qualified
// id belongs to.
func EnvIDOf(id string) string {
	_, path := ParseQualified(id)
	return EnvIDForPath(path)
}

// ModulePath returns the module path (outermost first) addressed by the
// Environment owned by moduleID. For the root Environment the path is empty.
func ModulePath(envID string) []string {
	if envID == RootEnvID || envID == "" {
		return nil
	}
	label, path := ParseQualified(envID)
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, label)
}
