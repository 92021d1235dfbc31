package models

// NodeType identifies the behavior of a node in the workflow graph.
type NodeType string

const (
	NodeTypeTrigger      NodeType = "trigger"
	NodeTypeEmail        NodeType = "email"
	NodeTypeTask         NodeType = "task"
	NodeTypeNotification NodeType = "notification"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeDelay        NodeType = "delay"
	NodeTypeLoop         NodeType = "loop"
	NodeTypeFetchData    NodeType = "fetch_data"
	NodeTypeUpdateStatus NodeType = "update_status"
)

// Handles emitted by condition nodes to select an outgoing branch.
const (
	HandleTrue  = "true"
	HandleFalse = "false"
)

// Position is the editor placement of a node. Carried through save/load
// untouched; the engine never reads it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one step in the workflow graph. Data is the type-specific
// parameter bag and may contain {{path}} placeholders in its text fields.
type Node struct {
	ID       string         `json:"id"   validate:"required"`
	Type     NodeType       `json:"type" validate:"required"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
}

// IsControl reports whether the node is handled inline by the run scheduler
// rather than dispatched to a registered action.
func (n *Node) IsControl() bool {
	switch n.Type {
	case NodeTypeTrigger, NodeTypeCondition, NodeTypeDelay, NodeTypeLoop:
		return true
	default:
		return false
	}
}

// Edge is a directed connection between two nodes. SourceHandle distinguishes
// the true/false branches of a condition node.
type Edge struct {
	ID           string `json:"id"     validate:"required"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// FlowDefinition is the persisted wire shape of a workflow graph. It must
// round-trip through save/load without loss; the engine builds a Graph from
// it once per run.
type FlowDefinition struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}
