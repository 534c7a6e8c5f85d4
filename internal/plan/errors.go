package plan

import (
	"fmt"
	"strings"
)

// MalformedPlanError reports a structurally invalid plan document: a
// required field is missing or has the wrong shape. Fatal; no partial
// tree is returned alongside it.
type MalformedPlanError struct {
	NodePath string
	Field    string
	Expected string
	Actual   string
}

func (e *MalformedPlanError) Error() string {
	var b strings.Builder
	b.WriteString("malformed plan")
	if e.NodePath != "" {
		fmt.Fprintf(&b, " at node %s", e.NodePath)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	if e.Expected != "" {
		fmt.Fprintf(&b, " expected %s", e.Expected)
	}
	if e.Actual != "" {
		fmt.Fprintf(&b, ", got %s", e.Actual)
	}
	return b.String()
}

// UnsupportedPlanVersionError reports a document whose format signature
// is not the EXPLAIN (FORMAT JSON) shape this package understands.
type UnsupportedPlanVersionError struct {
	Signature string
}

func (e *UnsupportedPlanVersionError) Error() string {
	return fmt.Sprintf("unsupported plan format: signature %q is not EXPLAIN (FORMAT JSON) output", e.Signature)
}
