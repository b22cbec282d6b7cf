package resolver

import (
	"fmt"
	"strings"
)

// ResolutionError reports a variable reference that names a missing node or
// a missing field on an existing node.
type ResolutionError struct {
	NodeId    string
	Field     string
	Available []string
	// MissingNode is false when the node exists but the field does not.
	MissingNode bool
}

func (e ResolutionError) Error() string {
	if e.MissingNode {
		return fmt.Sprintf("unresolved variable {{%s.%s}}: node %q not found, available nodes: [%s]",
			e.NodeId, e.Field, e.NodeId, strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("unresolved variable {{%s.%s}}: field %q not found, available fields: [%s]",
		e.NodeId, e.Field, e.Field, strings.Join(e.Available, ", "))
}

type CycleError struct {
	Path []string
}

func (e CycleError) Error() string {
	return "circular dependency detected: " + strings.Join(e.Path, " -> ")
}

// OrderError is returned when topological ordering could not place every node.
type OrderError struct {
	Remaining []string
}

func (e OrderError) Error() string {
	return fmt.Sprintf("could not order all nodes, cycle among: [%s]", strings.Join(e.Remaining, ", "))
}
