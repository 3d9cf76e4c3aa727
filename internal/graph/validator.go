package graph

import (
	"fmt"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Catalog resolves node types. Satisfied by *registry.Registry.
type Catalog interface {
	Has(typeID string) bool
	ConfigSchema(typeID string) (*schema.Descriptor, bool)
	Port(typeID, portID string, dir schema.PortDirection) (schema.PortDefinition, bool)
	PortDirection(typeID, portID string) (schema.PortDirection, bool)
}

// RejectReason explains why a connection was refused.
type RejectReason string

const (
	ReasonUnknownNode           RejectReason = "UNKNOWN_NODE"
	ReasonUnknownPort           RejectReason = "UNKNOWN_PORT"
	ReasonIncompatibleDirection RejectReason = "INCOMPATIBLE_DIRECTION"
	ReasonCapacityExceeded      RejectReason = "CAPACITY_EXCEEDED"
)

// Endpoint addresses one port of one node.
type Endpoint struct {
	Node string `json:"node"`
	Port string `json:"port"`
}

func (e Endpoint) String() string { return e.Node + "." + e.Port }

// Verdict is the outcome of a connection check.
type Verdict struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Message  string       `json:"message,omitempty"`
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(reason RejectReason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Err converts a rejection into a CONNECTION_REJECTED error, nil if accepted.
func (v Verdict) Err() error {
	if v.Accepted {
		return nil
	}
	return schema.NewError(schema.ErrCodeConnectionRejected, v.Message).
		WithDetails(map[string]any{"reason": string(v.Reason)})
}

// View is the graph state a Validator reads.
type View interface {
	NodeType(nodeID string) (string, bool)
	Occupied(target Endpoint) bool
}

// Validator decides whether an edge may be created between two endpoints.
type Validator struct {
	catalog Catalog
}

// NewValidator creates a Validator over the given catalog.
func NewValidator(catalog Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Check runs the rules in order: both endpoints resolve, the source is an
// output and the target an input, and a single-connection target is free.
func (v *Validator) Check(g View, source, target Endpoint) Verdict {
	srcType, ok := g.NodeType(source.Node)
	if !ok {
		return reject(ReasonUnknownNode, "source node %q does not exist", source.Node)
	}
	dstType, ok := g.NodeType(target.Node)
	if !ok {
		return reject(ReasonUnknownNode, "target node %q does not exist", target.Node)
	}
	if _, ok := v.catalog.PortDirection(srcType, source.Port); !ok {
		return reject(ReasonUnknownPort, "node %q (%s) has no port %q", source.Node, srcType, source.Port)
	}
	if _, ok := v.catalog.PortDirection(dstType, target.Port); !ok {
		return reject(ReasonUnknownPort, "node %q (%s) has no port %q", target.Node, dstType, target.Port)
	}

	if _, ok := v.catalog.Port(srcType, source.Port, schema.DirectionOutput); !ok {
		return reject(ReasonIncompatibleDirection, "source port %s is not an output", source)
	}
	port, ok := v.catalog.Port(dstType, target.Port, schema.DirectionInput)
	if !ok {
		return reject(ReasonIncompatibleDirection, "target port %s is not an input", target)
	}

	if !port.AllowMultiple && g.Occupied(target) {
		return reject(ReasonCapacityExceeded, "input port %s accepts a single connection", target)
	}
	return accept()
}

// DirectionCompatible reports whether a drag that started on a port of
// direction start may end on a port of direction candidate.
func DirectionCompatible(start, candidate schema.PortDirection) bool {
	return start.Valid() && candidate == start.Opposite()
}
